// Package email delivers notification jobs over SMTP. The job message is
// treated as HTML; a plain-text alternative is derived from it so the
// outgoing mail is multipart/alternative. With delivery disabled the
// sender logs the rendered notification instead of dialing out, which is
// the development default.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/job"
)

// Config holds SMTP settings.
type Config struct {
	// Host is the SMTP server hostname. Required when Enabled.
	Host string `json:"host" yaml:"host"`

	// Port is the SMTP server port. Defaults to 587.
	Port int `json:"port" yaml:"port"`

	// Username and Password authenticate via PLAIN auth. Leave empty for
	// unauthenticated relays.
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`

	// From is the sender address on outgoing mail. Required when Enabled.
	From string `json:"from" yaml:"from"`

	// Enabled turns real delivery on. When false the sender runs in dev
	// mode: every send is logged and reported successful.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Resolver maps a recipient ID to an email address.
type Resolver func(ctx context.Context, recipientID string) (string, error)

// Sender delivers jobs over SMTP.
type Sender struct {
	cfg     Config
	resolve Resolver
	logger  *slog.Logger

	// sendMail is swapped in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// Option configures a Sender.
type Option func(*Sender)

// WithLogger sets the sender's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// New creates an email Sender. The resolver turns recipient IDs into
// addresses; passing nil uses the recipient ID as the address verbatim.
func New(cfg Config, resolve Resolver, opts ...Option) (*Sender, error) {
	if cfg.Enabled {
		if cfg.Host == "" {
			return nil, fmt.Errorf("email: enabled without SMTP host")
		}
		if cfg.From == "" {
			return nil, fmt.Errorf("email: enabled without from address")
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if resolve == nil {
		resolve = func(_ context.Context, recipientID string) (string, error) {
			return recipientID, nil
		}
	}

	s := &Sender{
		cfg:      cfg,
		resolve:  resolve,
		logger:   slog.Default(),
		sendMail: smtp.SendMail,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Channel implements queue.Sender.
func (s *Sender) Channel() channel.Channel { return channel.Email }

// Send implements queue.Sender.
func (s *Sender) Send(ctx context.Context, j *job.Job) error {
	addr, err := s.resolve(ctx, j.RecipientID)
	if err != nil {
		return fmt.Errorf("email: resolve recipient %s: %w", j.RecipientID, err)
	}

	if !s.cfg.Enabled {
		s.logger.Info("email delivery disabled, logging notification",
			slog.String("job_id", j.ID.String()),
			slog.String("to", addr),
			slog.String("subject", j.Subject),
			slog.String("text", ToPlainText(j.Message)),
		)
		return nil
	}

	msg := s.buildMessage(addr, j)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	host := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	// smtp.SendMail has no context support; run it in a goroutine so the
	// per-job deadline still bounds the call.
	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(host, auth, s.cfg.From, []string{addr}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email: send to %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email: send to %s: %w", addr, ctx.Err())
	}
}

// buildMessage assembles a multipart/alternative MIME message with a
// plain-text part derived from the HTML body.
func (s *Sender) buildMessage(to string, j *job.Job) []byte {
	const boundary = "escalate-alt"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", j.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(ToPlainText(j.Message))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(j.Message)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
