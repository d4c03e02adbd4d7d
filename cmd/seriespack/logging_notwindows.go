//go:build !windows

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/liquidgecka/seriespack/config"
	"github.com/liquidgecka/seriespack/internal/sloghelper"
)

func SetupRotation(cnf *config.Config) {
	log := cnf.GetLogger()
	rotators := cnf.GetRotators()
	if len(rotators) == 0 {
		return
	}
	schan := make(chan os.Signal, 1)
	signal.Notify(schan, syscall.SIGHUP)
	log.Debug("Starting signal handler for SIGHUP.")
	go func(c chan os.Signal) {
		for range c {
			for _, r := range rotators {
				if err := r.Rotate(); err != nil {
					log.LogAttrs(
						context.Background(),
						slog.LevelWarn,
						"Log rotation failed.",
						sloghelper.Error("error", err))
				}
			}
			log.Debug("Logs rotated.")
		}
	}(schan)
}
