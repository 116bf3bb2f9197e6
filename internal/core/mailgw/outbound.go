package mailgw

import (
	"context"
	"fmt"
	"strings"

	"github.com/radiogate/radiogate/internal/core/forms"
	"github.com/radiogate/radiogate/internal/core/logger"
	"github.com/radiogate/radiogate/internal/core/notify"
	"github.com/radiogate/radiogate/internal/core/session"
)

// OutboundCheck inspects forms arriving over radio and mails out the
// ones that request internet delivery and pass the access rules
type OutboundCheck struct {
	rules  []Rule
	sender *Sender
	sink   notify.Sink
	log    logger.Logger
}

// NewOutboundCheck creates the radio -> internet side of the gateway.
// Rules must already be compiled.
func NewOutboundCheck(rules []Rule, sender *Sender, sink notify.Sink, log logger.Logger) *OutboundCheck {
	if log == nil {
		log = logger.Nop()
	}
	if sink == nil {
		sink = notify.NewLogSink(log)
	}
	return &OutboundCheck{rules: rules, sender: sender, sink: sink, log: log}
}

// HandleForm decides what to do with one received form file. Forms not
// addressed to a mail address are left alone. Forms that already
// crossed the gateway are never re-sent. Denied forms stay where they
// are with a status notification; nothing here is a hard error.
func (o *OutboundCheck) HandleForm(ctx context.Context, path string) {
	form, err := forms.Load(path)
	if err != nil {
		o.log.Warn("cannot inspect received form", "path", path, "error", err)
		return
	}

	if !form.WantsMail() {
		return
	}
	if form.RoutedThroughGateway() {
		o.log.Info("refusing to re-mail gatewayed form", "path", path)
		return
	}

	station := sourceStation(form)
	_, address := forms.SplitRelayAddress(form.Destination())

	if !AllowedOutgoing(o.rules, station, address) {
		o.sink.SessionStatus(session.ControlSessionID, fmt.Sprintf(
			"form from %s to %s held: outgoing mail not permitted", station, address))
		return
	}

	o.sender.Send(ctx, form, func(ok bool, msg string) {
		o.sink.SessionStatus(session.ControlSessionID, msg)
	})
}

// sourceStation extracts the originating callsign of a radio form.
// Radio-originated forms carry the sender's callsign in From.
func sourceStation(form *forms.Form) string {
	return strings.ToUpper(strings.TrimSpace(form.From))
}

// FormSink is a notify.Sink that forwards every event to the wrapped
// sink and additionally runs the outbound mail check on each received
// form
type FormSink struct {
	notify.Sink
	check *OutboundCheck
	ctx   context.Context
}

// NewFormSink wraps next so received forms flow into check
func NewFormSink(ctx context.Context, next notify.Sink, check *OutboundCheck) *FormSink {
	return &FormSink{Sink: next, check: check, ctx: ctx}
}

// FormReceived implements notify.Sink
func (s *FormSink) FormReceived(path string) {
	s.Sink.FormReceived(path)
	s.check.HandleForm(s.ctx, path)
}
