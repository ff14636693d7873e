package logflags

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is what the tracer packages log through. Only debug and error
// entries are produced: debug entries are emitted when the component is
// enabled, errors always.
type Logger interface {
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	// WithField returns a Logger that adds key=value to every entry.
	WithField(key string, value interface{}) Logger
}

// Fields are the key/value pairs attached to every entry of a Logger.
type Fields map[string]interface{}

// LoggerFactory builds the Logger of a component. out is the destination
// selected with --log-dest, nil for standard error.
type LoggerFactory func(level logrus.Level, fields Fields, out io.Writer) Logger

var loggerFactory LoggerFactory

// SetLoggerFactory replaces the logrus based default for all loggers
// created afterwards. A nil factory restores the default.
func SetLoggerFactory(lf LoggerFactory) {
	loggerFactory = lf
}

type logrusLogger struct {
	*logrus.Entry
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{l.Entry.WithField(key, value)}
}
