// Package watch contains the capture channels: independent producers that
// turn raw page signals into typed event payloads pushed through one shared
// sink.
package watch

import (
	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/models"
)

// Sink receives a typed payload from a capture channel. The session
// controller's sink stamps the session id and timestamp and enqueues the
// event for delivery.
type Sink func(data models.EventData)

// Watcher is one capture channel. Start attaches observers; a channel whose
// page facility is unavailable reports that via the returned error and is
// treated as a missing feature, never as fatal to the session. Stop
// detaches everything and is idempotent.
type Watcher interface {
	Start() error
	Stop()
}

// guard runs one observation callback and swallows any panic: a single
// malformed node or record must not halt observation of later signals.
func guard(logger *zap.Logger, channel string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("capture callback failed",
				zap.String("channel", channel),
				zap.Any("panic", r))
		}
	}()
	fn()
}
