// Package logging builds the file-backed slog loggers used by the CLI.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Logger is a slog.Logger bound to an optional log file.
type Logger struct {
	*slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New creates a logger appending text records to path. An empty path
// returns a logger that discards everything. Parent directories are
// created as needed.
func New(path, level string) (*Logger, error) {
	if path == "" {
		return Nop(), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &Logger{file: f}
	l.Logger = slog.New(slog.NewTextHandler(&syncWriter{l: l}, &slog.HandlerOptions{Level: ParseLevel(level)}))
	return l, nil
}

// ForKnowledgeBase opens <kb>/logs/rlm.log, falling back to a no-op
// logger if the file cannot be opened.
func ForKnowledgeBase(kb, level string) *Logger {
	l, err := New(filepath.Join(kb, "logs", "rlm.log"), level)
	if err != nil {
		return Nop()
	}
	return l
}

// Nop returns a logger that discards all records.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything
// else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close closes the log file. Safe on a nil or no-op logger.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// syncWriter serializes writes and flushes each record so a crashed run
// still leaves a readable log.
type syncWriter struct {
	l *Logger
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	if w.l.file == nil {
		return 0, io.ErrClosedPipe
	}
	n, err := w.l.file.Write(p)
	if err != nil {
		return n, err
	}
	return n, w.l.file.Sync()
}
