// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package gpulog is a small fan-out logger matching the original tool's
// initLog()/log(): every line goes to stdout and to an append-only log
// file, with no levels, modeled on io.MultiWriter + log.Logger rather than
// a structured logging library (see SPEC_FULL.md's ambient-stack section
// for why: nothing in the retrieval pack imports one from its own source).
package gpulog

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger fans every line out to stdout and an append-only log file.
type Logger struct {
	*log.Logger
	file *os.File
}

// Open opens (creating if needed) the log file at path and returns a
// Logger that writes every line to both it and stdout. Close releases the
// file handle.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("gpulog: open %s: %w", path, err)
	}
	w := io.MultiWriter(os.Stdout, f)
	return &Logger{Logger: log.New(w, "", log.LstdFlags), file: f}, nil
}

// Close releases the underlying log file.
func (l *Logger) Close() error {
	return l.file.Close()
}
