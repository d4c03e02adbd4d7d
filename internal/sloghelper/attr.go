package sloghelper

import (
	"log/slog"
	"time"

	"github.com/liquidgecka/seriespack/internal/human"
)

// Renders a byte count both raw and human readable, eg: size=1234567 and
// size-human=1.23MB.
func Bytes(key string, value int64) slog.Attr {
	h := "0B"
	if value > 0 {
		h = human.Bytes(uint64(value))
	}
	return slog.Group(
		"",
		slog.Int64(key, value),
		slog.String(key+"-human", h))
}

func Duration(key string, value time.Duration) slog.Attr {
	return slog.Attr{
		Key:   key,
		Value: slog.DurationValue(value),
	}
}

// Error attributes tolerate nil so that call sites can log a result
// without checking it first.
func Error(key string, value error) slog.Attr {
	if value == nil {
		return slog.String(key, "<nil>")
	}
	return slog.Attr{
		Key:   key,
		Value: slog.StringValue(value.Error()),
	}
}

func Int(key string, value int) slog.Attr {
	return slog.Attr{
		Key:   key,
		Value: slog.Int64Value(int64(value)),
	}
}

func Int64(key string, value int64) slog.Attr {
	return slog.Attr{
		Key:   key,
		Value: slog.Int64Value(value),
	}
}

func String(key, value string) slog.Attr {
	return slog.Attr{
		Key:   key,
		Value: slog.StringValue(value),
	}
}

// Identifies a series in log lines the same way everywhere.
func Series(caseID, studyID, seriesID string) slog.Attr {
	return slog.Group(
		"series",
		slog.String("case", caseID),
		slog.String("study", studyID),
		slog.String("id", seriesID))
}
