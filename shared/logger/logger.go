// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

// Package logger provides per-component structured loggers for the
// routing core. Output is JSON on stdout via zerolog; every entry
// carries the component name, and dispatch paths add request-scoped
// fields (request_id, provider, model).
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New creates a logger for the named component, writing JSON to stdout.
// The level is read from LOG_LEVEL (debug/info/warn/error), defaulting
// to info.
func New(component string) zerolog.Logger {
	return NewWithWriter(component, os.Stdout)
}

// NewWithWriter creates a component logger writing to w.
func NewWithWriter(component string, w io.Writer) zerolog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Nop returns a logger that discards everything. Used in tests and as
// the default when callers do not provide a logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
