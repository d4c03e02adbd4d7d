//go:build windows

package main

import (
	"context"
	"log/slog"

	"github.com/liquidgecka/seriespack/config"
)

func SetupRotation(cnf *config.Config) {
	if len(cnf.GetRotators()) == 0 {
		return
	}
	cnf.GetLogger().LogAttrs(
		context.Background(),
		slog.LevelInfo,
		"Log rotation does not currently work on windows.")
}
