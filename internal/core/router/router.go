// Package router implements the store-and-forward scheduler. Each
// cycle it snapshots which stations are reachable on which radio port,
// scans the outbox and hands at most one queued form per port to the
// coordinator. The one-per-port rule keeps a busy port from starving
// the others and bounds the airtime one cycle can claim.
package router

import (
	"context"
	"sort"
	"time"

	"github.com/radiogate/radiogate/internal/core/logger"
	"github.com/radiogate/radiogate/internal/core/outbox"
)

// Sender is the coordinator's outbound entry point
type Sender interface {
	SendForm(ctx context.Context, path, station string)
}

// Snapshotter supplies the current port -> reachable stations table
type Snapshotter interface {
	PortSnapshot() map[string][]string
}

// Config carries the router's tunables
type Config struct {
	// Interval separates routing cycles
	Interval time.Duration

	// Enabled gates each cycle; it is consulted every iteration so the
	// operator can pause forwarding without restarting
	Enabled func() bool
}

// Router periodically re-queues pending outbound forms to reachable
// stations
type Router struct {
	cfg      Config
	box      *outbox.Box
	sender   Sender
	snapshot Snapshotter
	log      logger.Logger

	trigger chan struct{}
}

// Option configures a Router
type Option func(*Router)

// WithLogger sets the logger for the Router
func WithLogger(log logger.Logger) Option {
	return func(r *Router) {
		r.log = log
	}
}

// New creates a router over the given outbox
func New(cfg Config, box *outbox.Box, sender Sender, snapshot Snapshotter, opts ...Option) *Router {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Enabled == nil {
		cfg.Enabled = func() bool { return true }
	}

	r := &Router{
		cfg:      cfg,
		box:      box,
		sender:   sender,
		snapshot: snapshot,
		log:      logger.Nop(),
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Trigger interrupts the inter-cycle sleep, starting the next cycle
// early. It never blocks.
func (r *Router) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run executes routing cycles until ctx is cancelled
func (r *Router) Run(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.Interval)
	defer timer.Stop()

	for {
		if r.cfg.Enabled() {
			r.Cycle(ctx)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.cfg.Interval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-r.trigger:
		}
	}
}

// Cycle runs one routing pass: for every destination with queued forms
// whose station is reachable on a port not yet used this cycle, claim
// the first form and hand it to the coordinator. Unreachable
// destinations and busy ports are skipped and retried next cycle.
func (r *Router) Cycle(ctx context.Context) {
	groups, err := r.box.GroupByDestination()
	if err != nil {
		r.log.Warn("outbox scan failed", "error", err)
		return
	}
	if len(groups) == 0 {
		return
	}

	stationPort := invertSnapshot(r.snapshot.PortSnapshot())

	destinations := make([]string, 0, len(groups))
	for dest := range groups {
		destinations = append(destinations, dest)
	}
	sort.Strings(destinations)

	usedPorts := make(map[string]bool)
	for _, dest := range destinations {
		port, reachable := stationPort[dest]
		if !reachable {
			r.log.Info("no route to destination", "destination", dest,
				"queued", len(groups[dest]))
			continue
		}
		if usedPorts[port] {
			continue
		}

		first := groups[dest][0]
		claimed, err := r.box.Claim(first.Path)
		if err != nil {
			r.log.Warn("claim failed, leaving for next cycle",
				"path", first.Path, "error", err)
			continue
		}

		usedPorts[port] = true
		r.log.Info("dispatching form", "destination", dest, "port", port,
			"path", claimed)
		r.sender.SendForm(ctx, claimed, dest)
	}
}

// invertSnapshot turns port -> stations into station -> port. When two
// ports both reach a station the lexically first port wins, which
// keeps cycles deterministic.
func invertSnapshot(snap map[string][]string) map[string]string {
	ports := make([]string, 0, len(snap))
	for port := range snap {
		ports = append(ports, port)
	}
	sort.Strings(ports)

	out := make(map[string]string)
	for _, port := range ports {
		for _, station := range snap[port] {
			if _, ok := out[station]; !ok {
				out[station] = port
			}
		}
	}
	return out
}
