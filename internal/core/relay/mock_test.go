package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/radiogate/radiogate/internal/core/session"
)

// fakeSession is a controllable stand-in for a transport session
type fakeSession struct {
	id      int
	name    string
	station string
	cap     session.Capability

	mu          sync.Mutex
	closed      bool
	closedForce bool
	sentPath    string
	written     []byte
	progressFn  func(session.Stats)

	// sendBlocks makes SendFile block until the session is closed
	sendBlocks bool
	// recvPath is returned by RecvToFile
	recvPath string
	recvErr  error
	sendOK   bool
	sendErr  error

	// radio feeds Read; closeCh unblocks blocked operations
	radio   chan []byte
	closeCh chan struct{}
	stats   session.Stats
}

func newFakeSession(id int, name string, cap session.Capability) *fakeSession {
	return &fakeSession{
		id:      id,
		name:    name,
		station: "KD1TST",
		cap:     cap,
		sendOK:  true,
		radio:   make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (s *fakeSession) ID() int                        { return s.id }
func (s *fakeSession) Name() string                   { return s.name }
func (s *fakeSession) Station() string                { return s.station }
func (s *fakeSession) Capability() session.Capability { return s.cap }

func (s *fakeSession) Read(max int) ([]byte, error) {
	select {
	case data := <-s.radio:
		if len(data) > max {
			data = data[:max]
		}
		return data, nil
	case <-s.closeCh:
		return nil, session.ErrSessionClosed
	default:
		if s.isClosed() {
			return nil, session.ErrSessionClosed
		}
		return nil, nil
	}
}

func (s *fakeSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, session.ErrSessionClosed
	}
	s.written = append(s.written, p...)
	return len(p), nil
}

func (s *fakeSession) Close(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.closedForce = force
	close(s.closeCh)
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) RecvToFile(dir string) (string, error) {
	return s.recvPath, s.recvErr
}

func (s *fakeSession) SendFile(path string) (bool, error) {
	s.mu.Lock()
	s.sentPath = path
	blocks := s.sendBlocks
	s.mu.Unlock()
	if blocks {
		<-s.closeCh
		return false, session.ErrSessionClosed
	}
	return s.sendOK, s.sendErr
}

func (s *fakeSession) OnProgress(fn func(session.Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progressFn = fn
}

func (s *fakeSession) Stats() session.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// fakeTransport records opened sessions and hands out prepared ones
type fakeTransport struct {
	mu       sync.Mutex
	next     []*fakeSession
	opened   []string
	snapshot map[string][]string
	online   bool
}

func (t *fakeTransport) Open(ctx context.Context, station string, cap session.Capability, pipelined bool) (session.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened = append(t.opened, station)
	if len(t.next) == 0 {
		return nil, fmt.Errorf("no session prepared for %s", station)
	}
	sess := t.next[0]
	t.next = t.next[1:]
	return sess, nil
}

func (t *fakeTransport) PortSnapshot() map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

func (t *fakeTransport) Broadcast(ctx context.Context, text string) error {
	return nil
}

func (t *fakeTransport) Online() bool { return t.online }

// recordingSink captures notifications and signals session ends
type recordingSink struct {
	mu       sync.Mutex
	started  []int
	ended    []int
	statuses map[int][]string
	files    []string
	forms    []string

	endCh chan int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		statuses: make(map[int][]string),
		endCh:    make(chan int, 16),
	}
}

func (r *recordingSink) SessionStarted(id int, cap session.Capability, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *recordingSink) SessionEnded(id int) {
	r.mu.Lock()
	r.ended = append(r.ended, id)
	r.mu.Unlock()
	r.endCh <- id
}

func (r *recordingSink) SessionStatus(id int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = append(r.statuses[id], message)
}

func (r *recordingSink) FileReceived(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, path)
}

func (r *recordingSink) FormReceived(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms = append(r.forms, path)
}

func (r *recordingSink) statusesFor(id int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.statuses[id]))
	copy(out, r.statuses[id])
	return out
}

func (r *recordingSink) endedIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.ended))
	copy(out, r.ended)
	return out
}
