package mailgw

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/radiogate/radiogate/internal/core/forms"
	"github.com/radiogate/radiogate/internal/core/logger"
	"github.com/radiogate/radiogate/internal/core/session"
)

// DefaultReplyTo is used when no reply-to address is configured.
// Outbound mail always carries a non-empty Reply-To.
const DefaultReplyTo = "relay@radiogate.invalid"

// SMTPConfig describes the outbound mail transport
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// From is the envelope and header sender
	From string
	// ReplyTo overrides DefaultReplyTo when set
	ReplyTo string
	// Enabled gates the whole gateway; consulted per send
	Enabled func() bool
}

// Callback receives the terminal outcome of one submitted send. It is
// invoked exactly once per submission, from the sender's goroutine.
type Callback func(ok bool, message string)

// Sender mails relay forms out through SMTP, asynchronously relative
// to its caller
type Sender struct {
	cfg       SMTPConfig
	transport session.Transport
	limiter   *rate.Limiter
	log       logger.Logger

	// sendMail is swapped out by tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// SenderOption configures a Sender
type SenderOption func(*Sender)

// WithSenderLogger sets the logger for the Sender
func WithSenderLogger(log logger.Logger) SenderOption {
	return func(s *Sender) {
		s.log = log
	}
}

// NewSender creates an outbound mail sender. Submissions are paced to
// at most one send per second with a small burst.
func NewSender(cfg SMTPConfig, transport session.Transport, opts ...SenderOption) *Sender {
	if cfg.ReplyTo == "" {
		cfg.ReplyTo = DefaultReplyTo
	}
	if cfg.Enabled == nil {
		cfg.Enabled = func() bool { return true }
	}

	s := &Sender{
		cfg:       cfg,
		transport: transport,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 3),
		log:       logger.Nop(),
		sendMail:  smtp.SendMail,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send mails form to its declared destination address in the
// background. The callback fires exactly once with the terminal
// outcome; cb may be nil.
func (s *Sender) Send(ctx context.Context, form *forms.Form, cb Callback) {
	var once sync.Once
	finish := func(ok bool, msg string) {
		once.Do(func() {
			if ok {
				s.log.Info("outbound mail sent", "to", form.Destination())
			} else {
				s.log.Warn("outbound mail not sent", "to", form.Destination(),
					"reason", msg)
			}
			if cb != nil {
				cb(ok, msg)
			}
		})
	}

	go func() {
		if err := s.send(ctx, form); err != nil {
			finish(false, err.Error())
			return
		}
		finish(true, fmt.Sprintf("mailed to %s", form.Destination()))
	}()
}

func (s *Sender) send(ctx context.Context, form *forms.Form) error {
	if !s.cfg.Enabled() {
		return errors.New("mail gateway is disabled")
	}
	if !s.transport.Online() {
		return errors.New("no internet connectivity")
	}
	if form.RoutedThroughGateway() {
		return errors.New("form already passed through the gateway")
	}

	to := form.Destination()
	if !strings.Contains(to, "@") {
		return errors.Errorf("destination %q is not a mail address", to)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "send cancelled")
	}

	msg, err := s.buildMessage(form, to)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return errors.Wrapf(err, "smtp send via %s", addr)
	}
	return nil
}

// buildMessage renders the outbound MIME message: a plain-text
// preamble for human readers plus the form payload attached under
// FormMIMEType so a receiving gateway can relay it verbatim
func (s *Sender) buildMessage(form *forms.Form, to string) ([]byte, error) {
	payload, err := yaml.Marshal(form)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling form payload")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fromName := CleanDisplayName(form.From)
	headerFrom := s.cfg.From
	if fromName != "" {
		headerFrom = fmt.Sprintf("%s via radiogate <%s>", fromName, s.cfg.From)
	}

	fmt.Fprintf(&buf, "From: %s\r\n", headerFrom)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Reply-To: %s\r\n", s.cfg.ReplyTo)
	fmt.Fprintf(&buf, "Subject: %s\r\n", form.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mw.Boundary())

	body, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, errors.Wrap(err, "building message body")
	}
	preamble := form.Message
	if preamble == "" {
		preamble = "(no message body)"
	}
	fmt.Fprintf(body, "Message relayed from %s by the radiogate gateway.\r\n\r\n%s\r\n",
		CleanDisplayName(form.From), preamble)

	attachment, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {FormMIMEType},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {`attachment; filename="form.yaml"`},
	})
	if err != nil {
		return nil, errors.Wrap(err, "building form attachment")
	}
	if _, err := attachment.Write([]byte(base64.StdEncoding.EncodeToString(payload))); err != nil {
		return nil, errors.Wrap(err, "writing form attachment")
	}

	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "finishing message")
	}
	return buf.Bytes(), nil
}
