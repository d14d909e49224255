package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/84hero/launchpad-indexer/pkg/config"
	"github.com/ethereum/go-ethereum/log"
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

// setupLogger installs the process-wide logger.
func setupLogger(cfg config.LogConfig, w io.Writer) {
	level := parseLevel(cfg.Level)

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = log.JSONHandlerWithLevel(w, level)
	} else {
		h = log.NewTerminalHandlerWithLevel(w, level, true)
	}
	log.SetDefault(log.NewLogger(h))
}
