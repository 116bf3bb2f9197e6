package relay

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiogate/radiogate/internal/core/session"
)

// dispatchTunnelSession wires a fake tunnel session to one end of an
// in-memory pipe and returns the test's end
func dispatchTunnelSession(t *testing.T, c *Coordinator, sess *fakeSession) net.Conn {
	t.Helper()
	local, remote := net.Pipe()

	w := newTunnelWorker(c, sess, local, c.cfg.SocketReadTimeout)
	c.register(sess.ID(), w)
	go w.run()
	return remote
}

func TestTunnelRelaysSocketToRadio(t *testing.T) {
	sink := newRecordingSink()
	c, _ := newTestCoordinator(t, sink)

	sess := newFakeSession(60, "proxy:2323", session.CapTunnel)
	remote := dispatchTunnelSession(t, c, sess)
	defer remote.Close()

	_, err := remote.Write([]byte("hello radio"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return string(sess.written) == "hello radio"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTunnelRelaysRadioToSocket(t *testing.T) {
	sink := newRecordingSink()
	c, _ := newTestCoordinator(t, sink)

	sess := newFakeSession(61, "proxy:2323", session.CapTunnel)
	remote := dispatchTunnelSession(t, c, sess)
	defer remote.Close()

	sess.radio <- []byte("hello socket")

	buf := make([]byte, 64)
	require.NoError(t, remote.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := remote.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello socket", string(buf[:n]))
}

func TestTunnelSocketCloseTearsDownSession(t *testing.T) {
	sink := newRecordingSink()
	c, _ := newTestCoordinator(t, sink)

	sess := newFakeSession(62, "proxy:2323", session.CapTunnel)
	remote := dispatchTunnelSession(t, c, sess)

	require.NoError(t, remote.Close())
	waitForEnd(t, sink, 62)

	assert.True(t, sess.isClosed())
	assert.Empty(t, c.Active())
}

func TestTunnelSessionCloseTearsDownSocket(t *testing.T) {
	sink := newRecordingSink()
	c, _ := newTestCoordinator(t, sink)

	sess := newFakeSession(63, "proxy:2323", session.CapTunnel)
	remote := dispatchTunnelSession(t, c, sess)
	defer remote.Close()

	require.NoError(t, sess.Close(false))
	waitForEnd(t, sink, 63)

	// The worker closed its end of the pipe; reads now fail
	require.NoError(t, remote.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := remote.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestTunnelCancelClosesBothEnds(t *testing.T) {
	sink := newRecordingSink()
	c, _ := newTestCoordinator(t, sink)

	sess := newFakeSession(64, "proxy:2323", session.CapTunnel)
	remote := dispatchTunnelSession(t, c, sess)
	defer remote.Close()

	require.NoError(t, c.Cancel(64, true))

	assert.True(t, sess.isClosed())
	assert.Empty(t, c.Active())
}

func TestListenerHoldAndTake(t *testing.T) {
	sink := newRecordingSink()
	c, _ := newTestCoordinator(t, sink)

	l, err := c.RegisterListener(2323, "localhost:23")
	require.NoError(t, err)

	local, remote := net.Pipe()
	defer remote.Close()
	defer local.Close()

	require.NoError(t, l.HoldConn(local))
	assert.Error(t, l.HoldConn(remote), "second hold should be refused")

	taken := l.TakeConn()
	assert.Same(t, local, taken)
	assert.Nil(t, l.TakeConn())
}
