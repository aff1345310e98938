package interactive

import "github.com/tonimelisma/msgraph-client/internal/logger"

// Logger is the logging interface of the driver.
type Logger interface {
	Debug(msg string, args ...any)
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

var _ Logger = logger.NoopLogger{}
