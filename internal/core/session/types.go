// Package session defines the contract between the relay core and the
// radio transport layer. The transport owns session lifecycles and wire
// encoding; the core only classifies sessions and drives transfers
// through the interfaces declared here.
package session

import (
	"context"
	"time"
)

// Capability classifies what a session can carry. The transport decides
// the capability once, at session creation.
type Capability string

const (
	// CapFile indicates a raw file transfer session
	CapFile Capability = "file"
	// CapForm indicates a structured message (form) transfer session
	CapForm Capability = "form"
	// CapTunnel indicates a TCP socket tunnel session
	CapTunnel Capability = "tunnel"
	// CapUnknown indicates a session the relay cannot classify
	CapUnknown Capability = "unknown"
)

// String returns the string representation of the capability
func (c Capability) String() string {
	return string(c)
}

// Direction indicates which side originated a session
type Direction string

const (
	// DirectionIn represents sessions opened by a remote station
	DirectionIn Direction = "in"
	// DirectionOut represents sessions opened locally
	DirectionOut Direction = "out"
)

// Reserved session identities. The control and chat channels use the two
// lowest IDs and are never cancelled.
const (
	ControlSessionID = 0
	ChatSessionID    = 1
)

// Reserved reports whether id belongs to a reserved channel
func Reserved(id int) bool {
	return id == ControlSessionID || id == ChatSessionID
}

// Stats carries live per-session transfer statistics
type Stats struct {
	BytesSent     int64
	BytesReceived int64
	Retries       int64
	// TotalSize is the negotiated transfer size; 0 means unknown
	TotalSize int64
	// StartedAt is nil until the transport has started the transfer clock
	StartedAt *time.Time
}

// Session is an opaque handle to one in-progress radio exchange. The
// transport layer owns it; the relay holds a reference for the lifetime
// of exactly one worker.
type Session interface {
	// ID returns the numeric session identity
	ID() int

	// Name returns the human-readable session name. Tunnel sessions
	// encode the target TCP port as a ":port" suffix.
	Name() string

	// Station returns the peer station callsign
	Station() string

	// Capability returns the session classification
	Capability() Capability

	// Read returns at most max bytes from the session. An empty slice
	// with a nil error means nothing is pending right now.
	Read(max int) ([]byte, error)

	// Write sends p over the session
	Write(p []byte) (int, error)

	// Close tears the session down; force skips the polite shutdown
	Close(force bool) error

	// RecvToFile receives the session payload into dir and returns the
	// stored path, or "" when the session carried nothing
	RecvToFile(dir string) (string, error)

	// SendFile transmits the file at path; false means the peer refused
	SendFile(path string) (bool, error)

	// OnProgress registers a callback invoked on transfer progress
	OnProgress(fn func(Stats))

	// Stats returns a snapshot of the session statistics
	Stats() Stats
}

// Transport is the relay's view of the radio stack and its link state
type Transport interface {
	// Open starts a new outbound session to station. Pipelined selects
	// the transport's pipelined transfer strategy over the simple one.
	Open(ctx context.Context, station string, cap Capability, pipelined bool) (Session, error)

	// PortSnapshot returns the current port -> reachable stations table
	PortSnapshot() map[string][]string

	// Broadcast sends text on the chat channel to every currently
	// reachable station
	Broadcast(ctx context.Context, text string) error

	// Online reports whether the process currently has internet
	// connectivity
	Online() bool
}
