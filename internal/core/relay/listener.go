package relay

import (
	"fmt"
	"net"
	"sync"
)

// ErrDuplicateListener is returned when a listener is registered for a
// port that already has one
type ErrDuplicateListener struct {
	Port int
}

func (e ErrDuplicateListener) Error() string {
	return fmt.Sprintf("listener already registered for port %d", e.Port)
}

// Listener holds the long-lived socket state for one tunnel port.
// Outbound tunnel sessions reuse the connection the listener accepted;
// at most one connection is held at a time.
type Listener struct {
	// Port is the tunnel port this listener serves
	Port int
	// Target is the remote host:port the tunnel proxies to
	Target string

	mu   sync.Mutex
	conn net.Conn
}

// HoldConn stores an accepted connection for the next outbound tunnel
// session. An already held connection is an error; the caller should
// refuse the new one.
func (l *Listener) HoldConn(conn net.Conn) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return fmt.Errorf("listener for port %d already holds a connection", l.Port)
	}
	l.conn = conn
	return nil
}

// TakeConn removes and returns the held connection, or nil
func (l *Listener) TakeConn() net.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	conn := l.conn
	l.conn = nil
	return conn
}

// Close releases any held connection
func (l *Listener) Close() {
	if conn := l.TakeConn(); conn != nil {
		_ = conn.Close()
	}
}

// RegisterListener creates and registers the listener for port.
// Registering a port twice is an error.
func (c *Coordinator) RegisterListener(port int, target string) (*Listener, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.listeners[port]; ok {
		return nil, ErrDuplicateListener{Port: port}
	}

	l := &Listener{Port: port, Target: target}
	c.listeners[port] = l
	return l, nil
}

// ListenerFor returns the registered listener for port, if any
func (c *Coordinator) ListenerFor(port int) (*Listener, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listeners[port]
	return l, ok
}

// RemoveListener unregisters and closes the listener for port
func (c *Coordinator) RemoveListener(port int) {
	c.mu.Lock()
	l, ok := c.listeners[port]
	if ok {
		delete(c.listeners, port)
	}
	c.mu.Unlock()

	if ok {
		l.Close()
	}
}
