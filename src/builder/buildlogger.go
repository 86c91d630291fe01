// Package builder drives the full lifecycle of a single build: working copy
// setup, the core stage sequence, outcome and completion stages, cleanup,
// and final persistence.
package builder

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"cadence-ci/src/logger"
)

// BuildLogger implements logger.Logger, forwarding each line to an inner
// logger while keeping a timestamped transcript that is stored on the build
// record at the end of the run.
type BuildLogger struct {
	inner logger.Logger

	mu  sync.Mutex
	buf strings.Builder
}

func NewBuildLogger(inner logger.Logger) *BuildLogger {
	return &BuildLogger{inner: inner}
}

func (l *BuildLogger) Info(msg string, args ...interface{}) {
	l.inner.Info(msg, args...)
	l.capture("INFO", msg, args...)
}

func (l *BuildLogger) Error(msg string, args ...interface{}) {
	l.inner.Error(msg, args...)
	l.capture("ERROR", msg, args...)
}

func (l *BuildLogger) Debug(msg string, args ...interface{}) {
	l.inner.Debug(msg, args...)
	l.capture("DEBUG", msg, args...)
}

// Contents returns the transcript accumulated so far.
func (l *BuildLogger) Contents() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func (l *BuildLogger) capture(level, msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(&l.buf, "%s [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, fmt.Sprintf(msg, args...))
}
