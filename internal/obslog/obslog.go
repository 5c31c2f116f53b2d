// Package obslog wraps logrus with the verbosity convention the allocator
// exposes to callers: a single integer knob (HPC_VERBOSE_LEVEL) rather than
// named level strings, matching the original C++ tool's verbosity flag.
package obslog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a *logrus.Logger preconfigured with a text formatter; fields
// are threaded through via WithFields rather than ad-hoc Sprintf calls.
type Logger struct {
	*logrus.Logger
}

// levelForVerbosity maps the 0-3 HPC_VERBOSE_LEVEL scale onto logrus
// levels: 0 is warnings and errors only, 3 is full trace.
func levelForVerbosity(v int) logrus.Level {
	switch {
	case v <= 0:
		return logrus.WarnLevel
	case v == 1:
		return logrus.InfoLevel
	case v == 2:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// New builds a Logger writing to stderr at the level implied by verbosity.
func New(verbosity int) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(levelForVerbosity(verbosity))
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return &Logger{l}
}

// WithSession returns an entry pre-populated with the run's correlation ID,
// the field every other log call in a run should carry.
func (l *Logger) WithSession(sessionID string) *logrus.Entry {
	return l.WithField("session", sessionID)
}
