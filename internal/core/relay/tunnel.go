package relay

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/radiogate/radiogate/internal/core/session"
)

// tunnelChunkSize bounds each read from the radio session
const tunnelChunkSize = 512

// ParseTunnelPort extracts the target TCP port from a tunnel session
// name of the form "label:port". Anything else is a fatal session
// error for the caller.
func ParseTunnelPort(name string) (int, error) {
	parts := strings.Split(name, ":")
	if len(parts) != 2 {
		return 0, session.ErrBadTunnelName{Name: name}
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port <= 0 || port > 65535 {
		return 0, session.ErrBadTunnelName{Name: name}
	}
	return port, nil
}

// resolveTunnelConn produces the TCP connection for a tunnel session.
// Inbound sessions dial the configured target for the port named in
// the session; outbound sessions reuse the connection their listener
// already holds.
func (c *Coordinator) resolveTunnelConn(sess session.Session, dir session.Direction) (net.Conn, error) {
	port, err := ParseTunnelPort(sess.Name())
	if err != nil {
		return nil, err
	}

	if dir == session.DirectionIn {
		target, ok := c.cfg.TunnelPorts[port]
		if !ok {
			return nil, fmt.Errorf("no tunnel target configured for port %d", port)
		}
		conn, err := net.DialTimeout("tcp", target, c.cfg.SocketReadTimeout)
		if err != nil {
			return nil, fmt.Errorf("cannot connect to tunnel target %s: %w", target, err)
		}
		return conn, nil
	}

	c.mu.Lock()
	l, ok := c.listeners[port]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no listener registered for port %d", port)
	}

	conn := l.TakeConn()
	if conn == nil {
		return nil, fmt.Errorf("listener for port %d holds no connection", port)
	}
	return conn, nil
}

// tunnelWorker pumps bytes both ways between one TCP connection and
// one radio session until either side closes or the worker is stopped.
type tunnelWorker struct {
	c    *Coordinator
	sess session.Session
	conn net.Conn

	readTimeout time.Duration
	enabled     atomic.Bool
	done        chan struct{}
}

func newTunnelWorker(c *Coordinator, sess session.Session, conn net.Conn, readTimeout time.Duration) *tunnelWorker {
	w := &tunnelWorker{
		c:           c,
		sess:        sess,
		conn:        conn,
		readTimeout: readTimeout,
		done:        make(chan struct{}),
	}
	w.enabled.Store(true)
	return w
}

// Stop disables the relay loop, closes the session and joins the
// worker goroutine
func (w *tunnelWorker) Stop(force bool) {
	w.enabled.Store(false)
	_ = w.sess.Close(force)
	<-w.done
}

func (w *tunnelWorker) run() {
	defer close(w.done)
	defer w.c.End(w.sess.ID())
	defer func() {
		// The session is torn down first; the socket close is
		// best-effort once the radio side is gone.
		_ = w.sess.Close(false)
		_ = w.conn.Close()
	}()

	for w.enabled.Load() {
		sockData, sockClosed := w.readSocket()
		if sockClosed {
			return
		}

		radioData, err := w.sess.Read(tunnelChunkSize)
		if err != nil {
			if !errors.Is(err, session.ErrSessionClosed) {
				w.c.log.Debug("tunnel session read failed",
					"id", w.sess.ID(), "error", err)
			}
			return
		}

		st := w.sess.Stats()
		w.c.sink.SessionStatus(w.sess.ID(), fmt.Sprintf(
			"sent %d B, received %d B, %d retries",
			st.BytesSent, st.BytesReceived, st.Retries))

		if len(sockData) > 0 {
			if _, err := w.sess.Write(sockData); err != nil {
				return
			}
		}
		if len(radioData) > 0 {
			if _, err := w.conn.Write(radioData); err != nil {
				return
			}
		}
	}
}

// readSocket accumulates whatever the socket yields until the read
// timeout elapses and returns the chunk, which may be empty. A closed
// socket that produced nothing this call reports closure.
func (w *tunnelWorker) readSocket() (data []byte, closed bool) {
	deadline := time.Now().Add(w.readTimeout)
	_ = w.conn.SetReadDeadline(deadline)

	buf := make([]byte, tunnelChunkSize)
	for {
		n, err := w.conn.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err == nil {
			if time.Now().After(deadline) {
				return data, false
			}
			continue
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return data, false
		}
		// EOF or a hard error: use what we have, report closure only
		// when this call read nothing at all.
		return data, len(data) == 0
	}
}
