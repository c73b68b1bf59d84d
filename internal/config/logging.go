// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// DefaultLogFile returns ~/.llmchat/llmchat.log.
func DefaultLogFile() string {
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "llmchat.log")
}

// ParseLogLevel converts a level name to a slog.Level. Empty means info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (use debug, info, warn or error)", s)
	}
}

// SetupLoggerTo creates a dual-output logger: text to console, JSON to
// logFile. An empty logFile or "-" logs to the console only. It returns the
// logger and a cleanup function that closes the file. The terminal chat
// passes io.Discard so log lines do not interleave with the conversation.
func SetupLoggerTo(console io.Writer, logFile string, level slog.Level) (*slog.Logger, func() error) {
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{
		Level: level,
	})
	if logFile == "" || logFile == "-" {
		return slog.New(consoleHandler), func() error { return nil }
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		slog.New(consoleHandler).Warn("failed to create log directory, using console only", "error", err, "file", logFile)
		return slog.New(consoleHandler), func() error { return nil }
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		slog.New(consoleHandler).Warn("failed to open log file, using console only", "error", err, "file", logFile)
		return slog.New(consoleHandler), func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(slogmulti.Fanout(consoleHandler, fileHandler))

	return logger, file.Close
}
