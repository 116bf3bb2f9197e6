package session

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by Read/Write once the transport has torn
// the session down
var ErrSessionClosed = errors.New("session closed")

// ErrSessionNotFound is returned when a session ID is not registered
type ErrSessionNotFound struct {
	ID int
}

func (e ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session not found: %d", e.ID)
}

// ErrSessionReserved is returned when cancelling a reserved channel
type ErrSessionReserved struct {
	ID int
}

func (e ErrSessionReserved) Error() string {
	return fmt.Sprintf("session %d is reserved and cannot be cancelled", e.ID)
}

// ErrBadTunnelName is returned when a tunnel session name does not carry
// a parseable ":port" suffix
type ErrBadTunnelName struct {
	Name string
}

func (e ErrBadTunnelName) Error() string {
	return fmt.Sprintf("tunnel session name %q has no valid port suffix", e.Name)
}
