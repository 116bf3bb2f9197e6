// Package relay implements the session coordinator: the single owner
// of the worker registry, the pending outbound content queues and the
// socket listener registry. The coordinator classifies every new radio
// session by capability, binds exactly one worker to it and keeps all
// shared state behind one mutex so registry and queue mutations are
// atomic with respect to each other.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radiogate/radiogate/internal/core/logger"
	"github.com/radiogate/radiogate/internal/core/notify"
	"github.com/radiogate/radiogate/internal/core/session"
)

// Config carries the coordinator's operating parameters
type Config struct {
	// Callsign is the local operator identity, stamped into the routing
	// path of every inbound form
	Callsign string

	// FilesDir receives inbound file transfers
	FilesDir string

	// InboxDir receives inbound forms
	InboxDir string

	// Pipelined selects the transport's pipelined transfer strategy for
	// locally originated sessions
	Pipelined bool

	// SocketReadTimeout bounds each tunnel socket read
	SocketReadTimeout time.Duration

	// TunnelPorts maps an inbound tunnel port to the local target
	// host:port it proxies to
	TunnelPorts map[int]string
}

type worker interface {
	// Stop disables the worker, closes its session and blocks until the
	// worker goroutine has exited
	Stop(force bool)
}

// Coordinator supervises one worker per active radio session
type Coordinator struct {
	cfg       Config
	transport session.Transport
	sink      notify.Sink
	log       logger.Logger

	mu           sync.Mutex
	workers      map[int]worker
	pendingFiles []string
	pendingForms []string
	listeners    map[int]*Listener
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the logger for the Coordinator
func WithLogger(log logger.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithSink sets the notification sink for the Coordinator
func WithSink(sink notify.Sink) Option {
	return func(c *Coordinator) {
		c.sink = sink
	}
}

// NewCoordinator creates a session coordinator
func NewCoordinator(cfg Config, transport session.Transport, opts ...Option) *Coordinator {
	if cfg.SocketReadTimeout <= 0 {
		cfg.SocketReadTimeout = 2 * time.Second
	}

	c := &Coordinator{
		cfg:       cfg,
		transport: transport,
		log:       logger.Nop(),
		workers:   make(map[int]worker),
		listeners: make(map[int]*Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sink == nil {
		c.sink = notify.NewLogSink(c.log)
	}
	return c
}

// Dispatch classifies sess and binds a worker to it. Unknown
// capabilities are logged and dropped; the session is left to the
// caller. A tunnel session whose destination cannot be resolved is
// closed with an error status and no worker is created.
func (c *Coordinator) Dispatch(sess session.Session, dir session.Direction) error {
	switch sess.Capability() {
	case session.CapFile, session.CapForm:
		return c.dispatchTransfer(sess, dir)
	case session.CapTunnel:
		return c.dispatchTunnel(sess, dir)
	default:
		c.log.Warn("dropping session with unknown capability",
			"id", sess.ID(), "name", sess.Name())
		return fmt.Errorf("unknown capability for session %d", sess.ID())
	}
}

func (c *Coordinator) dispatchTransfer(sess session.Session, dir session.Direction) error {
	var payload string
	if dir == session.DirectionOut {
		payload = c.popPending(sess.Capability())
		if payload == "" {
			c.sink.SessionStatus(sess.ID(), "nothing queued to send")
			c.failSession(sess, "no pending content for outbound session")
			return fmt.Errorf("no pending %s content for session %d", sess.Capability(), sess.ID())
		}
	} else {
		payload = c.cfg.FilesDir
		if sess.Capability() == session.CapForm {
			payload = c.cfg.InboxDir
		}
	}

	w := newTransferWorker(c, sess, dir, payload)
	c.register(sess.ID(), w)
	c.sink.SessionStarted(sess.ID(), sess.Capability(), sess.Name())
	go w.run()
	return nil
}

func (c *Coordinator) dispatchTunnel(sess session.Session, dir session.Direction) error {
	conn, err := c.resolveTunnelConn(sess, dir)
	if err != nil {
		c.failSession(sess, err.Error())
		return err
	}

	w := newTunnelWorker(c, sess, conn, c.cfg.SocketReadTimeout)
	c.register(sess.ID(), w)
	c.sink.SessionStarted(sess.ID(), session.CapTunnel, sess.Name())
	go w.run()
	return nil
}

// failSession reports a session-level failure and closes the session.
// Failures are always scoped to one session; the coordinator keeps
// running.
func (c *Coordinator) failSession(sess session.Session, reason string) {
	c.log.Warn("session failed before dispatch", "id", sess.ID(), "reason", reason)
	c.sink.SessionStatus(sess.ID(), fmt.Sprintf("error: %s", reason))
	if err := sess.Close(false); err != nil {
		c.log.Debug("session close failed", "id", sess.ID(), "error", err)
	}
}

// Cancel removes the worker for id and closes its session, forwarding
// force to the close call. The reserved control and chat channels are
// never cancelled. Cancel blocks until the worker has fully exited.
func (c *Coordinator) Cancel(id int, force bool) error {
	if session.Reserved(id) {
		return session.ErrSessionReserved{ID: id}
	}

	c.mu.Lock()
	w, ok := c.workers[id]
	if ok {
		delete(c.workers, id)
	}
	c.mu.Unlock()

	if !ok {
		return session.ErrSessionNotFound{ID: id}
	}

	w.Stop(force)
	return nil
}

// End marks the session terminal, removing it from the registry and
// emitting a session-ended notification. Calling End for an id that is
// already gone is a no-op.
func (c *Coordinator) End(id int) {
	c.mu.Lock()
	_, ok := c.workers[id]
	if ok {
		delete(c.workers, id)
	}
	c.mu.Unlock()

	if ok {
		c.sink.SessionEnded(id)
	}
}

// Shutdown force-stops every active worker and releases all
// listeners. It blocks until the workers have joined.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	workers := make([]worker, 0, len(c.workers))
	for id, w := range c.workers {
		workers = append(workers, w)
		delete(c.workers, id)
	}
	listeners := make([]*Listener, 0, len(c.listeners))
	for port, l := range c.listeners {
		listeners = append(listeners, l)
		delete(c.listeners, port)
	}
	c.mu.Unlock()

	for _, w := range workers {
		w.Stop(true)
	}
	for _, l := range listeners {
		l.Close()
	}
}

// Active returns the ids of sessions that currently have a worker
func (c *Coordinator) Active() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.workers))
	for id := range c.workers {
		ids = append(ids, id)
	}
	return ids
}

func (c *Coordinator) register(id int, w worker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workers[id] = w
}

// EnqueueFile queues a file path for a future outbound file session
func (c *Coordinator) EnqueueFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingFiles = append(c.pendingFiles, path)
}

// EnqueueForm queues a form path for a future outbound form session
func (c *Coordinator) EnqueueForm(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingForms = append(c.pendingForms, path)
}

// popPending removes and returns the oldest queued entry of the given
// kind. Queues drain first-in-first-out so concurrent enqueues keep
// their submission order.
func (c *Coordinator) popPending(cap session.Capability) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var q *[]string
	switch cap {
	case session.CapFile:
		q = &c.pendingFiles
	case session.CapForm:
		q = &c.pendingForms
	default:
		return ""
	}

	if len(*q) == 0 {
		return ""
	}
	head := (*q)[0]
	*q = (*q)[1:]
	return head
}

// PendingCounts returns the number of queued files and forms
func (c *Coordinator) PendingCounts() (files, formCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pendingFiles), len(c.pendingForms)
}

// SendFile queues path and asynchronously opens a new outbound file
// session to station. The caller is never blocked; open failures are
// reported through the status sink.
func (c *Coordinator) SendFile(ctx context.Context, path, station string) {
	c.EnqueueFile(path)
	go c.openOutbound(ctx, station, session.CapFile)
}

// SendForm queues path and asynchronously opens a new outbound form
// session to station
func (c *Coordinator) SendForm(ctx context.Context, path, station string) {
	c.EnqueueForm(path)
	go c.openOutbound(ctx, station, session.CapForm)
}

func (c *Coordinator) openOutbound(ctx context.Context, station string, cap session.Capability) {
	sess, err := c.transport.Open(ctx, station, cap, c.cfg.Pipelined)
	if err != nil {
		c.log.Warn("outbound session open failed",
			"station", station, "type", cap.String(), "error", err)
		c.sink.SessionStatus(session.ControlSessionID,
			fmt.Sprintf("error: cannot reach %s: %v", station, err))
		return
	}
	if err := c.Dispatch(sess, session.DirectionOut); err != nil {
		c.log.Warn("outbound dispatch failed", "station", station, "error", err)
	}
}
