package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/radiogate/radiogate/internal/config"
	"github.com/radiogate/radiogate/internal/core/logger"
	"github.com/radiogate/radiogate/internal/core/mailgw"
	"github.com/radiogate/radiogate/internal/core/notify"
	"github.com/radiogate/radiogate/internal/core/outbox"
	"github.com/radiogate/radiogate/internal/core/relay"
	"github.com/radiogate/radiogate/internal/core/router"
	"github.com/radiogate/radiogate/internal/core/session"
)

var serveLogJSON bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay daemon",
	Long: `Run the store-and-forward relay: the session coordinator, the
message router and the email gateway, until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveLogJSON, "log-json", false,
		"emit JSON logs instead of text")
	rootCmd.AddCommand(serveCmd)
}

// TransportFactory builds the radio transport the daemon attaches to.
// Deployments that link a real transport replace this; the default
// stands in so the mail gateway and held queues work without radio
// hardware.
var TransportFactory = func(cfg *config.Config, log logger.Logger) session.Transport {
	log.Warn("no radio transport linked, running gateway-only")
	return nullTransport{}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	format := logger.FormatText
	if serveLogJSON {
		format = logger.FormatJSON
	}
	log := logger.New(logger.WithFormat(format))

	rules, err := cfg.CompiledRules()
	if err != nil {
		return err
	}

	transport := TransportFactory(cfg, log)

	box, err := outbox.New(cfg.OutboxDir(), outbox.WithLogger(log.With("component", "outbox")))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender := mailgw.NewSender(mailgw.SMTPConfig{
		Host:     cfg.Mail.SMTP.Host,
		Port:     cfg.Mail.SMTP.Port,
		User:     cfg.Mail.SMTP.User,
		Password: cfg.Mail.SMTP.Password,
		From:     cfg.Mail.SMTP.From,
		ReplyTo:  cfg.Mail.ReplyTo,
		Enabled:  func() bool { return cfg.Mail.GatewayEnabled },
	}, transport, mailgw.WithSenderLogger(log.With("component", "mailgw")))

	dispatcher := notify.NewDispatcher(notify.NewLogSink(log.With("component", "notify")))
	defer dispatcher.Close()

	check := mailgw.NewOutboundCheck(rules, sender, dispatcher,
		log.With("component", "mailgw"))
	sink := mailgw.NewFormSink(ctx, dispatcher, check)

	coordinator := relay.NewCoordinator(relay.Config{
		Callsign:          cfg.Callsign,
		FilesDir:          cfg.FilesDir(),
		InboxDir:          cfg.InboxDir(),
		Pipelined:         cfg.Pipelined,
		SocketReadTimeout: time.Duration(cfg.Tunnel.ReadTimeoutSeconds) * time.Second,
		TunnelPorts:       cfg.Tunnel.Ports,
	}, transport,
		relay.WithLogger(log.With("component", "relay")),
		relay.WithSink(sink))
	defer coordinator.Shutdown()

	rt := router.New(router.Config{
		Interval: cfg.Forwarding.Interval.AsDuration(),
		Enabled:  func() bool { return cfg.Forwarding.Enabled },
	}, box, coordinator, transport,
		router.WithLogger(log.With("component", "router")))

	poller := mailgw.NewPoller(cfg.GatewayAccounts(), rules, transport, box, rt,
		mailgw.WithPollerLogger(log.With("component", "mailgw")),
		mailgw.WithPollerSink(dispatcher))

	log.Info("radiogate starting", "callsign", cfg.Callsign,
		"outbox", cfg.OutboxDir(), "accounts", len(cfg.Mail.Accounts))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(ctx) })
	g.Go(func() error { return poller.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("radiogate stopped")
	return nil
}

// nullTransport reports no reachable stations and refuses to open
// sessions; connectivity is assumed so the mail side still runs.
type nullTransport struct{}

func (nullTransport) Open(ctx context.Context, station string, cap session.Capability, pipelined bool) (session.Session, error) {
	return nil, fmt.Errorf("no radio transport linked")
}

func (nullTransport) PortSnapshot() map[string][]string { return nil }

func (nullTransport) Broadcast(ctx context.Context, text string) error {
	return fmt.Errorf("no radio transport linked")
}

func (nullTransport) Online() bool { return true }
