// Package logger is the leveled logger behind Graph requests, token
// acquisition and the sign-in window. Records go to a log/slog text handler;
// attributes that carry credentials are masked before they are written.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger has a key/value and a printf variant per level. pkg/graph,
// pkg/identity and pkg/interactive each declare the same method set so
// callers outside this module can plug in their own.
type Logger interface {
	Debug(msg string, args ...any)
	Debugf(format string, args ...any)
	Info(msg string, args ...any)
	Infof(format string, args ...any)
	Warn(msg string, args ...any)
	Warnf(format string, args ...any)
	Error(msg string, args ...any)
	Errorf(format string, args ...any)
}

// NoopLogger drops everything. It is the default of every package that
// accepts a Logger.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any)  {}
func (NoopLogger) Debugf(string, ...any) {}
func (NoopLogger) Info(string, ...any)   {}
func (NoopLogger) Infof(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)   {}
func (NoopLogger) Warnf(string, ...any)  {}
func (NoopLogger) Error(string, ...any)  {}
func (NoopLogger) Errorf(string, ...any) {}

// Redacted replaces the value of a sensitive attribute.
const Redacted = "[REDACTED]"

// sensitiveKeys are attribute keys, compared case-insensitively, whose
// values never reach the output.
var sensitiveKeys = map[string]bool{
	"authorization":    true,
	"access_token":     true,
	"refresh_token":    true,
	"id_token":         true,
	"client_secret":    true,
	"client_assertion": true,
	"code_verifier":    true,
	"device_code":      true,
	"password":         true,
}

// SlogLogger writes through a slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger writes text records at level and above to stderr.
func NewSlogLogger(level slog.Level) *SlogLogger {
	return NewWriterLogger(os.Stderr, level)
}

// NewWriterLogger writes text records at level and above to w.
func NewWriterLogger(w io.Writer, level slog.Level) *SlogLogger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactAttr,
	})
	return &SlogLogger{logger: slog.New(handler)}
}

// NewDefaultLogger is the CLI logger: debug level with --debug, where
// request and response dumps show up, info otherwise.
func NewDefaultLogger(debug bool) Logger {
	if debug {
		return NewSlogLogger(slog.LevelDebug)
	}
	return NewSlogLogger(slog.LevelInfo)
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	return a
}

func (l *SlogLogger) Debug(msg string, args ...any)     { l.logger.Debug(msg, args...) }
func (l *SlogLogger) Debugf(format string, args ...any) { l.logger.Debug(sprintf(format, args...)) }
func (l *SlogLogger) Info(msg string, args ...any)      { l.logger.Info(msg, args...) }
func (l *SlogLogger) Infof(format string, args ...any)  { l.logger.Info(sprintf(format, args...)) }
func (l *SlogLogger) Warn(msg string, args ...any)      { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Warnf(format string, args ...any)  { l.logger.Warn(sprintf(format, args...)) }
func (l *SlogLogger) Error(msg string, args ...any)     { l.logger.Error(msg, args...) }
func (l *SlogLogger) Errorf(format string, args ...any) { l.logger.Error(sprintf(format, args...)) }

// sprintf leaves a format without arguments alone, so a dump containing
// '%' is not mangled.
func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
