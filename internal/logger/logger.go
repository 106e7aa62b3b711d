// Package logger provides structured logging for the Inkwell server.
// Records go to stderr as text by default; JSON output suits log
// aggregation in production. Debug records are gated behind verbose
// mode.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	useJSON bool
	output  io.Writer = os.Stderr
	level             = new(slog.LevelVar)
	log               = slog.New(newHandler(os.Stderr, false))
)

func newHandler(w io.Writer, json bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// rebuild swaps the handler. Callers must hold the lock.
func rebuild() {
	log = slog.New(newHandler(output, useJSON))
}

// SetVerbose enables or disables debug records.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	rebuild()
}

// SetJSON switches between text and JSON records.
func SetJSON(json bool) {
	mu.Lock()
	defer mu.Unlock()
	useJSON = json
	rebuild()
}

// Debug logs a debug record. Suppressed unless verbose mode is on.
func Debug(msg string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Debug(msg, args...)
}

// Info logs an informational record.
func Info(msg string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Info(msg, args...)
}

// Warn logs a warning record.
func Warn(msg string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Warn(msg, args...)
}

// Error logs an error record.
func Error(msg string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Error(msg, args...)
}

// Handler returns the current slog handler, for libraries that want a
// *slog.Logger of their own.
func Handler() slog.Handler {
	mu.RLock()
	defer mu.RUnlock()
	return log.Handler()
}

// Enabled reports whether records at the given level would be emitted.
func Enabled(l slog.Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return log.Enabled(context.Background(), l)
}
