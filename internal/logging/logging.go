// Package logging wraps logrus behind the small key-value logging surface the
// rest of the application uses.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the application logger. Messages carry alternating key-value
// pairs, e.g. logger.Info("job finished", "job_id", id).
type Logger struct {
	l *logrus.Logger
}

// NewLogger creates a new Logger writing to stdout.
func NewLogger() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.DebugLevel)
	return &Logger{l: l}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.l.WithFields(fields(args)).Debug(msg)
}

// Info logs an informational message.
func (l *Logger) Info(msg string, args ...any) {
	l.l.WithFields(fields(args)).Info(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.l.WithFields(fields(args)).Warn(msg)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.l.WithFields(fields(args)).Error(msg)
}

// fields converts alternating key-value args into logrus fields. A trailing
// key without a value is kept with a nil value rather than dropped.
func fields(args []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if i+1 < len(args) {
			f[key] = args[i+1]
		} else {
			f[key] = nil
		}
	}
	return f
}
