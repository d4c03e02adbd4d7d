package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/liquidgecka/seriespack/internal/sloghelper"
)

var (
	defaultLogFormat = "plain"
	defaultLogDebug  = false
)

type log struct {
	// A log file to log too. When not set logs go to stderr.
	File *string `toml:"file"`

	// Which format to use when logging to the file, valid option are
	// "plain" and "json". Default is plain.
	Format *string `toml:"format"`

	// Enable debug logging.
	Debug *bool `toml:"debug"`

	// The name passed in to validate() initially.
	name string

	// The logger created by initLogging.
	logger *slog.Logger

	// The level shared by every handler so that -debug can raise it.
	leveler *sloghelper.Leveler

	// Manages the output file when one is configured.
	rotator *sloghelper.Rotator
}

// The standard error stream, replaced by tests.
var stderr io.Writer = os.Stderr

// Returns true if w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	fd, ok := w.(*os.File)
	return ok && term.IsTerminal(int(fd.Fd()))
}

func (l *log) handler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: l.leveler}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func (l *log) initLogging() error {
	level := slog.LevelInfo
	if (debug != nil && *debug) || *l.Debug {
		level = slog.LevelDebug
	}
	l.leveler = sloghelper.NewLeveler(level)

	if l.File == nil {
		// People watching a terminal get plain text regardless of format.
		format := *l.Format
		if isTerminal(stderr) {
			format = "plain"
		}
		l.logger = slog.New(l.handler(stderr, format))
		return nil
	}

	var err error
	l.rotator, err = sloghelper.NewRotator(*l.File)
	if err != nil {
		return fmt.Errorf(
			"%s had an error initializing: %s",
			l.name,
			err.Error())
	}
	h := l.handler(l.rotator, *l.Format)
	if console != nil && *console {
		format := *l.Format
		if isTerminal(stderr) {
			format = "plain"
		}
		h = sloghelper.Tee{h, l.handler(stderr, format)}
	}
	l.logger = slog.New(h)
	return nil
}

func (l *log) validate(t *top, name string) []string {
	var errors []string

	// Store some information for referencing later.
	l.name = name

	// File
	if l.File != nil && *l.File == "" {
		errors = append(errors, name+".file can not be an empty string.")
	}

	// Format
	if l.Format == nil {
		l.Format = &defaultLogFormat
	} else if *l.Format != "plain" && *l.Format != "json" {
		errors = append(errors, name+".format must be 'plain' or 'json'.")
	}

	// Debug
	if l.Debug == nil {
		l.Debug = &defaultLogDebug
	}

	// Return any errors encountered.
	return errors
}
