// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Aleutian components.
//
// The package is a thin layer over Go's standard library slog with two
// additions the insights service needs: optional file logging alongside
// stderr, and a Close() that releases the file handle.
//
// # Basic Usage
//
// For simple usage with stderr output:
//
//	logger := logging.Default()
//	logger.Info("ask received", "request_id", requestID)
//
// # File Logging
//
// To enable file logging alongside stderr:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "/var/log/aleutian",
//	    Service: "insights",
//	})
//	defer logger.Close()
//
// This creates log files named `{service}_{date}.log` in JSON format.
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers
// must ensure tokens and secrets are not logged:
//
//	// BAD: logs sensitive data
//	logger.Info("auth", "token", authToken)
//
//	// GOOD: log metadata only
//	logger.Info("auth", "token_present", authToken != "")
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity. Levels follow the slog convention and
// are ordered Debug < Info < Warn < Error; setting a minimum level
// filters out everything below it.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for potentially problematic situations.
	LevelWarn

	// LevelError is for error conditions.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel bridges our Level type to the standard library.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the Logger behavior.
//
// All fields have sensible defaults. A zero-value Config creates a
// logger that writes Info+ messages to stderr in text format.
type Config struct {
	// Level sets the minimum log level. Messages below this level
	// are discarded. Default: LevelInfo
	Level Level

	// LogDir enables file logging to the specified directory.
	//
	// When set, logs are written to both stderr and a file named
	// "{Service}_{YYYY-MM-DD}.log" in JSON format. The directory is
	// created with 0750 permissions if it doesn't exist. Supports ~
	// for home directory expansion.
	//
	// Default: "" (file logging disabled)
	LogDir string

	// Service identifies the component generating logs. Included in
	// every entry as the "service" attribute. Default: "" (omitted)
	Service string

	// JSON enables JSON output on stderr. File logs are always JSON
	// regardless of this setting. Default: false (text format)
	JSON bool

	// Quiet disables stderr output; logs go only to the file (if
	// LogDir is set). Default: false (stderr enabled)
	Quiet bool
}

// =============================================================================
// Logger
// =============================================================================

// Logger provides structured logging with stderr and optional file
// output. Safe for concurrent use; the file handle is opened once at
// construction and only touched again by Close().
type Logger struct {
	*slog.Logger
	file *os.File
}

// New creates a Logger from cfg.
//
// # Description
//
// Builds the slog handler chain: stderr (unless Quiet) plus an optional
// JSON log file under cfg.LogDir. File-open failures degrade to
// stderr-only logging rather than failing construction.
//
// # Inputs
//
//   - cfg: Logger configuration. Zero value gives Info+ text on stderr.
//
// # Outputs
//
//   - *Logger: Ready-to-use logger. Call Close() when done if LogDir
//     was set.
func New(cfg Config) *Logger {
	var writers []io.Writer
	if !cfg.Quiet {
		writers = append(writers, os.Stderr)
	}

	var file *os.File
	if cfg.LogDir != "" {
		f, err := openLogFile(cfg.LogDir, cfg.Service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: file logging disabled: %v\n", err)
		} else {
			file = f
			writers = append(writers, f)
		}
	}

	var out io.Writer = io.Discard
	if len(writers) == 1 {
		out = writers[0]
	} else if len(writers) > 1 {
		out = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.toSlogLevel()}

	var handler slog.Handler
	if cfg.JSON || (cfg.Quiet && file != nil) {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}

	return &Logger{Logger: logger, file: file}
}

// Default returns a Logger with zero-value Config: Info+ text on stderr.
func Default() *Logger {
	return New(Config{})
}

// Close releases the log file handle, if any. Safe to call on a
// stderr-only logger and safe to call more than once.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return f.Close()
}

// openLogFile creates the log directory and opens (appending) the
// dated log file for service.
func openLogFile(dir, service string) (*os.File, error) {
	dir = expandHome(dir)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	name := service
	if name == "" {
		name = "aleutian"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", name, time.Now().Format("2006-01-02")))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	return f, nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return home
	}
	if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
		return filepath.Join(home, path[2:])
	}

	return path
}
