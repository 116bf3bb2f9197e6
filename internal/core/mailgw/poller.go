package mailgw

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/radiogate/radiogate/internal/core/forms"
	"github.com/radiogate/radiogate/internal/core/logger"
	"github.com/radiogate/radiogate/internal/core/notify"
	"github.com/radiogate/radiogate/internal/core/outbox"
	"github.com/radiogate/radiogate/internal/core/session"
)

// Action selects how an inbound account's mail enters the relay
type Action string

const (
	// ActionForward converts mail to a form and queues it for radio
	// dispatch, subject to the access rules
	ActionForward Action = "forward"
	// ActionChat broadcasts the mail body to all reachable stations
	ActionChat Action = "chat"
)

// ParseAction maps a config string onto an Action
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionForward:
		return ActionForward, nil
	case ActionChat:
		return ActionChat, nil
	}
	return "", errors.Errorf("unknown gateway action %q", s)
}

// Account describes one polled mailbox
type Account struct {
	Host     string
	Port     int
	TLS      bool
	User     string
	Password string
	Interval time.Duration
	Action   Action
}

// RouteRequester asks the router to run an early cycle
type RouteRequester interface {
	Trigger()
}

// Poller retrieves waiting mail from the configured accounts and feeds
// it into the relay
type Poller struct {
	accounts  []Account
	rules     []Rule
	transport session.Transport
	box       *outbox.Box
	router    RouteRequester
	sink      notify.Sink
	log       logger.Logger

	trigger chan struct{}
}

// PollerOption configures a Poller
type PollerOption func(*Poller)

// WithPollerLogger sets the logger for the Poller
func WithPollerLogger(log logger.Logger) PollerOption {
	return func(p *Poller) {
		p.log = log
	}
}

// WithPollerSink sets the notification sink for the Poller
func WithPollerSink(sink notify.Sink) PollerOption {
	return func(p *Poller) {
		p.sink = sink
	}
}

// NewPoller creates an inbound mail poller. Rules must already be
// compiled.
func NewPoller(accounts []Account, rules []Rule, transport session.Transport,
	box *outbox.Box, router RouteRequester, opts ...PollerOption,
) *Poller {
	p := &Poller{
		accounts:  accounts,
		rules:     rules,
		transport: transport,
		box:       box,
		router:    router,
		log:       logger.Nop(),
		trigger:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sink == nil {
		p.sink = notify.NewLogSink(p.log)
	}
	return p
}

// Trigger interrupts the inter-poll wait of every account. An in-flight
// fetch is never interrupted.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run polls every configured account on its own interval until ctx is
// cancelled
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, acct := range p.accounts {
		acct := acct
		g.Go(func() error {
			return p.pollLoop(ctx, acct)
		})
	}
	return g.Wait()
}

func (p *Poller) pollLoop(ctx context.Context, acct Account) error {
	interval := acct.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-p.trigger:
		}

		if err := p.PollAccount(ctx, acct); err != nil {
			p.log.Warn("mail poll failed", "host", acct.Host, "user", acct.User,
				"error", err)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)
	}
}

// PollAccount fetches and handles every waiting message on one
// account. Each message is deleted from the server only after it has
// been retrieved and handled locally.
func (p *Poller) PollAccount(ctx context.Context, acct Account) error {
	if !p.transport.Online() {
		p.log.Debug("skipping mail poll, offline", "host", acct.Host)
		return nil
	}

	client, err := dialPOP3(acct.Host, acct.Port, acct.TLS)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.quit(); err != nil {
			p.log.Debug("mailbox disconnect failed", "host", acct.Host, "error", err)
		}
	}()

	if err := client.auth(acct.User, acct.Password); err != nil {
		return err
	}

	count, err := client.stat()
	if err != nil {
		return err
	}

	for n := 1; n <= count; n++ {
		raw, err := client.retr(n)
		if err != nil {
			return err
		}
		if err := p.handleMessage(ctx, raw, acct); err != nil {
			p.log.Warn("inbound mail not relayed", "host", acct.Host,
				"message", n, "error", err)
			// The message was retrieved; deleting it keeps the mailbox
			// from wedging on one bad message.
		}
		if err := client.dele(n); err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) handleMessage(ctx context.Context, raw []byte, acct Account) error {
	if acct.Action == ActionChat {
		text, err := ChatTextFromMail(raw)
		if err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		return p.transport.Broadcast(ctx, text)
	}

	form, sender, err := FormFromMail(raw)
	if err != nil {
		return err
	}

	if AllowedIncoming(p.rules, form.Destination(), sender) {
		path, err := p.box.Put(form)
		if err != nil {
			return err
		}
		p.log.Info("mail queued for radio dispatch",
			"destination", form.Destination(), "from", sender, "path", path)
		if p.router != nil {
			p.router.Trigger()
		}
		return nil
	}

	// Policy denial is not an error: the form goes to the held
	// directory and the operator decides.
	heldPath := filepath.Join(p.box.HeldDir(),
		fmt.Sprintf("%d-%s.yaml", time.Now().Unix(), uuid.New().String()[:8]))
	if err := forms.Save(heldPath, form); err != nil {
		return err
	}
	p.sink.FormReceived(heldPath)
	p.sink.SessionStatus(session.ControlSessionID, fmt.Sprintf(
		"mail from %s held for review (destination %s)", sender, form.Destination()))
	return nil
}
