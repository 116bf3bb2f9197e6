package mailgw

import (
	"context"
	"net/smtp"
	"sync"

	"github.com/radiogate/radiogate/internal/core/session"
)

// stubTransport implements just enough of session.Transport for the
// gateway: a switchable link state and a broadcast recorder.
type stubTransport struct {
	mu        sync.Mutex
	online    bool
	broadcast []string
}

func (t *stubTransport) Open(context.Context, string, session.Capability, bool) (session.Session, error) {
	panic("gateway must not open radio sessions")
}

func (t *stubTransport) PortSnapshot() map[string][]string { return nil }

func (t *stubTransport) Broadcast(_ context.Context, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcast = append(t.broadcast, text)
	return nil
}

func (t *stubTransport) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

func (t *stubTransport) broadcasts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.broadcast...)
}

// recordingSink captures sink events for assertions
type recordingSink struct {
	mu       sync.Mutex
	statuses []string
	forms    []string
	files    []string
}

func (s *recordingSink) SessionStarted(int, session.Capability, string) {}
func (s *recordingSink) SessionEnded(int)                               {}

func (s *recordingSink) SessionStatus(_ int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, message)
}

func (s *recordingSink) FileReceived(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, path)
}

func (s *recordingSink) FormReceived(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms = append(s.forms, path)
}

func (s *recordingSink) statusLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

func (s *recordingSink) receivedForms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.forms...)
}

// capturedSend records one sendMail invocation
type capturedSend struct {
	addr string
	from string
	to   []string
	msg  []byte
}

// captureSMTP swaps a Sender's smtp call for a recorder and returns the
// channel the captures arrive on
func captureSMTP(s *Sender, fail error) <-chan capturedSend {
	ch := make(chan capturedSend, 8)
	s.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		ch <- capturedSend{addr: addr, from: from, to: to, msg: msg}
		return fail
	}
	return ch
}
