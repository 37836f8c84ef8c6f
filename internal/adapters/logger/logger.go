// Package logger implements a logging adapter using log/slog.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/bake/internal/core/ports"
)

// FormatEnv selects the log format. "json" switches to JSON records.
const FormatEnv = "BAKE_LOG_FORMAT"

// LevelEnv selects the minimum log level: debug, info, warn or error.
const LevelEnv = "BAKE_LOG_LEVEL"

// messager is implemented by zerr errors, which report their own message without the chain.
type messager interface {
	Message() string
}

type metadater interface {
	Metadata() map[string]any
}

// ErrorEntry is one link of an error chain as it is printed.
type ErrorEntry struct {
	Message  string
	Metadata map[string]any
}

// Logger implements ports.Logger using log/slog.
type Logger struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	jsonMode bool
	level    *slog.LevelVar
	output   io.Writer
}

var _ ports.Logger = (*Logger)(nil)

// New creates a Logger writing to stderr, configured from BAKE_LOG_FORMAT and BAKE_LOG_LEVEL.
func New() ports.Logger {
	l := &Logger{
		level:    &slog.LevelVar{},
		output:   os.Stderr,
		jsonMode: os.Getenv(FormatEnv) == "json",
	}
	if lvl, ok := parseLevel(os.Getenv(LevelEnv)); ok {
		l.level.Set(lvl)
	}
	l.rebuild()
	return l
}

func parseLevel(s string) (slog.Level, bool) {
	var lvl slog.Level
	if s == "" {
		return lvl, false
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, false
	}
	return lvl, true
}

// rebuild replaces the handler. Callers hold mu or own l exclusively.
func (l *Logger) rebuild() {
	w := l.output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: l.level}
	var handler slog.Handler
	if l.jsonMode {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = NewPrettyHandler(w, opts)
	}
	l.logger = slog.New(handler)
}

// SetOutput updates the logger's output destination, keeping the current format.
// If w is nil, os.Stderr is used.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// SetJSON switches between JSON and pretty logging.
func (l *Logger) SetJSON(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jsonMode = enable
	l.rebuild()
}

// SetLevel changes the minimum level that is logged.
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Debug(msg)
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Info(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Warn(msg)
}

// Error logs an error with its cause chain.
func (l *Logger) Error(err error) {
	if err == nil {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.jsonMode {
		l.logger.Error("operation failed", "error", err)
		return
	}
	l.logger.Error(formatErrorEntries(collectErrorEntries(err)))
}

// collectErrorEntries walks the zerr chain. The first non-zerr error ends the walk with its full text.
// A layer without a message only carries metadata, which moves to the error it wraps.
func collectErrorEntries(err error) []ErrorEntry {
	var (
		entries []ErrorEntry
		carried map[string]any
	)
	for current := err; current != nil; {
		m, ok := current.(messager)
		if !ok {
			entries = append(entries, ErrorEntry{Message: current.Error(), Metadata: carried})
			break
		}
		var md map[string]any
		if d, ok := current.(metadater); ok {
			md = d.Metadata()
		}
		next := errors.Unwrap(current)
		if m.Message() == "" && next != nil {
			carried = mergeMetadata(carried, md)
			current = next
			continue
		}
		entries = append(entries, ErrorEntry{Message: m.Message(), Metadata: mergeMetadata(carried, md)})
		carried = nil
		current = next
	}
	return entries
}

func mergeMetadata(carried, md map[string]any) map[string]any {
	if len(carried) == 0 {
		return md
	}
	out := maps.Clone(carried)
	maps.Copy(out, md)
	return out
}

func formatErrorEntries(entries []ErrorEntry) string {
	var lines []string
	for i, entry := range entries {
		msgLines := strings.Split(entry.Message, "\n")
		first, indent := "Error: ", "       "
		if i > 0 {
			if i == 1 {
				lines = append(lines, "", "  Caused by:")
			}
			first, indent = "    → ", "      "
		}
		lines = append(lines, first+msgLines[0])
		for _, line := range msgLines[1:] {
			lines = append(lines, indent+line)
		}
		for _, k := range slices.Sorted(maps.Keys(entry.Metadata)) {
			lines = append(lines, fmt.Sprintf("%s%s: %v", indent, k, entry.Metadata[k]))
		}
	}
	return strings.Join(lines, "\n")
}
