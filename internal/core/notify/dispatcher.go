package notify

import (
	"sync"

	"github.com/radiogate/radiogate/internal/core/session"
)

type eventKind int

const (
	eventSessionStarted eventKind = iota
	eventSessionEnded
	eventSessionStatus
	eventFileReceived
	eventFormReceived
)

type event struct {
	kind    eventKind
	id      int
	cap     session.Capability
	name    string
	message string
	path    string
}

// Dispatcher is a Sink that fans concurrent producers into a single
// consumer goroutine, which forwards events to the wrapped sink in
// arrival order. This keeps UI adapters single-threaded.
type Dispatcher struct {
	next   Sink
	events chan event
	done   chan struct{}
	once   sync.Once
}

// NewDispatcher wraps next in a serializing dispatcher. Close must be
// called to stop the consumer goroutine.
func NewDispatcher(next Sink) *Dispatcher {
	d := &Dispatcher{
		next:   next,
		events: make(chan event, 64),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		switch ev.kind {
		case eventSessionStarted:
			d.next.SessionStarted(ev.id, ev.cap, ev.name)
		case eventSessionEnded:
			d.next.SessionEnded(ev.id)
		case eventSessionStatus:
			d.next.SessionStatus(ev.id, ev.message)
		case eventFileReceived:
			d.next.FileReceived(ev.path)
		case eventFormReceived:
			d.next.FormReceived(ev.path)
		}
	}
}

// Close stops the dispatcher after draining queued events
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.events)
	})
	<-d.done
}

func (d *Dispatcher) post(ev event) {
	defer func() {
		// Posting after Close is a producer lifecycle bug, but events
		// must never take the relay down.
		_ = recover()
	}()
	d.events <- ev
}

// SessionStarted implements Sink
func (d *Dispatcher) SessionStarted(id int, cap session.Capability, name string) {
	d.post(event{kind: eventSessionStarted, id: id, cap: cap, name: name})
}

// SessionEnded implements Sink
func (d *Dispatcher) SessionEnded(id int) {
	d.post(event{kind: eventSessionEnded, id: id})
}

// SessionStatus implements Sink
func (d *Dispatcher) SessionStatus(id int, message string) {
	d.post(event{kind: eventSessionStatus, id: id, message: message})
}

// FileReceived implements Sink
func (d *Dispatcher) FileReceived(path string) {
	d.post(event{kind: eventFileReceived, path: path})
}

// FormReceived implements Sink
func (d *Dispatcher) FormReceived(path string) {
	d.post(event{kind: eventFormReceived, path: path})
}
