// Package notify carries relay events to the presentation layer. The
// core only ever calls a Sink; adapters decide how events reach a UI.
// Dispatcher serializes concurrent producers onto a single consumer so
// a UI adapter never needs its own locking.
package notify

import (
	"github.com/radiogate/radiogate/internal/core/logger"
	"github.com/radiogate/radiogate/internal/core/session"
)

// Sink receives relay events, one method per event kind.
type Sink interface {
	// SessionStarted reports a newly dispatched session
	SessionStarted(id int, cap session.Capability, name string)

	// SessionEnded reports a session reaching a terminal state
	SessionEnded(id int)

	// SessionStatus reports a human-readable status line for a session
	SessionStatus(id int, message string)

	// FileReceived reports a completed inbound file and its location
	FileReceived(path string)

	// FormReceived reports a completed inbound form and its location
	FormReceived(path string)
}

// LogSink forwards every event to a Logger. It is the default sink for
// headless operation.
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a sink that writes events to log
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

// SessionStarted implements Sink
func (s *LogSink) SessionStarted(id int, cap session.Capability, name string) {
	s.log.Info("session started", "id", id, "type", cap.String(), "name", name)
}

// SessionEnded implements Sink
func (s *LogSink) SessionEnded(id int) {
	s.log.Info("session ended", "id", id)
}

// SessionStatus implements Sink
func (s *LogSink) SessionStatus(id int, message string) {
	s.log.Info("session status", "id", id, "status", message)
}

// FileReceived implements Sink
func (s *LogSink) FileReceived(path string) {
	s.log.Info("file received", "path", path)
}

// FormReceived implements Sink
func (s *LogSink) FormReceived(path string) {
	s.log.Info("form received", "path", path)
}
