// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging configures the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"
)

// New builds a JSON-handler logger writing to path. If path is empty
// it writes to stderr. If path cannot be opened for append, it falls
// back to stderr and logs a warning there describing why, rather than
// failing startup over a logging misconfiguration.
func New(path string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	if path == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fallback := slog.New(slog.NewJSONHandler(os.Stderr, opts))
		fallback.Warn("unable to open log file, logging to stderr instead", "path", path, "error", err)
		return fallback
	}
	return slog.New(slog.NewJSONHandler(f, opts))
}

// Install sets logger as the process-wide default, for packages that
// reach for slog's package-level functions rather than taking an
// explicit *slog.Logger.
func Install(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// MustNew is like New but also installs the logger as the default,
// for use at process startup. It never returns a nil logger, so
// "must" here is about the fallback behavior being guaranteed, not
// about panicking.
func MustNew(path string) *slog.Logger {
	logger := New(path)
	Install(logger)
	return logger
}
