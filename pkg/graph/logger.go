package graph

import "github.com/tonimelisma/msgraph-client/internal/logger"

// Logger is the logging interface the client writes to. It matches
// internal/logger.Logger so the CLI's slog logger plugs straight in.
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

// closeBodySafely closes an HTTP response body and logs any error.
func closeBodySafely(body interface{ Close() error }, log Logger, operation string) {
	if err := body.Close(); err != nil {
		log.Warnf("Failed to close %s body: %v", operation, err)
	}
}
