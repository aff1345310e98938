package identity

import "github.com/tonimelisma/msgraph-client/internal/logger"

// Logger is the logging interface used by the token flows.
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

var _ Logger = logger.NoopLogger{}
