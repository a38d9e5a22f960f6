package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogFileName is the file created inside the log directory.
const LogFileName = "vimbot.log"

var slogLevels = map[string]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

// sink is the destination shared by a logger and all of its children.
type sink struct {
	mu   sync.Mutex
	file *os.File
}

func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// Logger writes JSON lines with persistent attributes. It is safe for
// concurrent use.
type Logger struct {
	logger *slog.Logger
	sink   *sink
}

// NewLogger creates a Logger that appends to {dir}/vimbot.log. If dir is
// empty, logs are written to stderr.
//
// The level parameter is one of DEBUG, INFO, WARN, ERROR (case-insensitive);
// unrecognized values fall back to INFO.
func NewLogger(dir string, level string) (*Logger, error) {
	if dir == "" {
		return NewWriterLogger(os.Stderr, level), nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := NewWriterLogger(file, level)
	l.sink.file = file
	return l, nil
}

// NewWriterLogger creates a Logger writing JSON lines to w. Close does not
// close w.
func NewWriterLogger(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slogLevels[ParseLevel(level)],
	})
	return &Logger{logger: slog.New(handler), sink: &sink{}}
}

// WithServer returns a child Logger tagging entries with the vim server name.
func (l *Logger) WithServer(name string) *Logger {
	return l.With("server", name)
}

// WithBinary returns a child Logger tagging entries with the editor binary.
func (l *Logger) WithBinary(binary string) *Logger {
	return l.With("binary", binary)
}

// With returns a child Logger with arbitrary key-value attributes.
// Keys and values are provided as alternating arguments; pairs whose key
// is not a string are dropped.
func (l *Logger) With(args ...any) *Logger {
	attrs := make([]any, 0, len(args))
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(key, args[i+1]))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(attrs...), sink: l.sink}
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelError, msg, args...)
}

// Close flushes and closes the log file shared with every child. Further
// calls are no-ops.
func (l *Logger) Close() error {
	return l.sink.close()
}

// NopLogger returns a Logger that discards all log output.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.DiscardHandler), sink: &sink{}}
}

// ParseLevel normalizes a user-provided level string.
// Returns LevelInfo if the level string is not recognized.
func ParseLevel(level string) string {
	level = strings.ToUpper(strings.TrimSpace(level))
	if _, ok := slogLevels[level]; ok {
		return level
	}
	return LevelInfo
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
