package builder

import (
	"context"
	"sync"

	"cadence-ci/src/contracts"
	"cadence-ci/src/store"
)

// ErrorWriter buffers build errors emitted by plugins and flushes them to the
// store at defined pipeline points: once before the completion stage so its
// plugins can query final diagnostics, and once after cleanup to cover errors
// the completion stage itself emitted.
type ErrorWriter struct {
	store   store.Store
	buildID int64

	mu      sync.Mutex
	pending []contracts.BuildError
}

func NewErrorWriter(s store.Store, buildID int64) *ErrorWriter {
	return &ErrorWriter{store: s, buildID: buildID}
}

// Record buffers one diagnostic. Implements plugin.ErrorSink.
func (w *ErrorWriter) Record(pluginName string, severity contracts.Severity, message, file string, line int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, contracts.BuildError{
		BuildID:  w.buildID,
		Plugin:   pluginName,
		Severity: severity,
		Message:  message,
		File:     file,
		Line:     line,
	})
}

// Flush persists all buffered errors and clears the buffer.
func (w *ErrorWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	return w.store.SaveBuildErrors(ctx, pending)
}
