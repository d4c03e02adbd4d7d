package report

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	ierrors "github.com/liquidgecka/seriespack/internal/errors"
	"github.com/liquidgecka/seriespack/internal/sloghelper"
)

// The outcome of one unit of work.
type Status int

const (
	// The unit completed.
	Success Status = iota

	// The unit had nothing to do, for example a series that was already
	// archived.
	Skipped

	// The unit failed. Other units are not affected.
	Failed

	// The unit failed in a way that stops the whole stage.
	Fatal
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// The result of one unit of work (a series for the archiver, a package
// record for the splitter).
type Result struct {
	Unit   string
	Status Status

	// A short human readable explanation for skipped and failed units.
	Reason string

	// The error behind a Failed or Fatal status.
	Err error

	// Files processed by the unit.
	Files int

	// Files that were expected but could not be fetched.
	Missing []string
}

// Aggregates the results of a stage. It is safe for concurrent use.
type Summary struct {
	Stage string

	lock    sync.Mutex
	start   time.Time
	results []Result
	counts  [Fatal + 1]int
	files   int
	missing int
}

func NewSummary(stage string) *Summary {
	return &Summary{
		Stage: stage,
		start: time.Now(),
	}
}

func (s *Summary) Add(r Result) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.results = append(s.results, r)
	if r.Status >= Success && r.Status <= Fatal {
		s.counts[r.Status] += 1
	}
	s.files += r.Files
	s.missing += len(r.Missing)
}

// Returns the number of results with the given status.
func (s *Summary) Count(st Status) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	if st < Success || st > Fatal {
		return 0
	}
	return s.counts[st]
}

// Returns the total number of results.
func (s *Summary) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.results)
}

// Returns a copy of every result in the order they were added.
func (s *Summary) Results() []Result {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Returns true if any unit was Fatal.
func (s *Summary) Fatal() bool {
	return s.Count(Fatal) > 0
}

// Returns nil if no unit failed, otherwise an error listing every failed
// unit.
func (s *Summary) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	var errs []error
	for _, r := range s.results {
		if r.Status != Failed && r.Status != Fatal {
			continue
		}
		err := r.Err
		if err == nil {
			err = errors.New(r.Reason)
		}
		errs = append(errs, errors.Wrap(err, r.Unit))
	}
	return ierrors.NewMultipleError(s.Stage+" failed", errs)
}

// Logs one line for the stage followed by one line per failed unit.
func (s *Summary) Log(ctx context.Context, l *slog.Logger) {
	l = sloghelper.OrDiscard(l)
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, r := range s.results {
		if r.Status != Failed && r.Status != Fatal {
			continue
		}
		l.LogAttrs(
			ctx,
			slog.LevelError,
			"Unit failed.",
			sloghelper.String("stage", s.Stage),
			sloghelper.String("unit", r.Unit),
			sloghelper.String("status", r.Status.String()),
			sloghelper.String("reason", r.Reason),
			sloghelper.Error("error", r.Err))
	}
	level := slog.LevelInfo
	if s.counts[Failed]+s.counts[Fatal] > 0 {
		level = slog.LevelWarn
	}
	l.LogAttrs(
		ctx,
		level,
		"Stage complete.",
		sloghelper.String("stage", s.Stage),
		sloghelper.Int("success", s.counts[Success]),
		sloghelper.Int("skipped", s.counts[Skipped]),
		sloghelper.Int("failed", s.counts[Failed]),
		sloghelper.Int("fatal", s.counts[Fatal]),
		sloghelper.Int("files", s.files),
		sloghelper.Int("missing", s.missing),
		sloghelper.Duration("elapsed", time.Since(s.start)))
}
