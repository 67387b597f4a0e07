// Package chat delivers notification jobs to a Telegram chat. All
// notifications land in one configured chat (typically the team's
// escalation channel), with the recipient named in the message body.
// With delivery disabled the sender logs the rendered notification
// instead, which is the development default.
package chat

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/channel/email"
	"github.com/xraph/escalate/job"
)

// Config holds Telegram settings.
type Config struct {
	// Token is the bot token. Required when Enabled.
	Token string `json:"token" yaml:"token"`

	// ChatID is the destination chat. Required when Enabled.
	ChatID int64 `json:"chat_id" yaml:"chat_id"`

	// ThreadID routes messages into a forum topic. Zero means the main
	// thread.
	ThreadID int `json:"thread_id" yaml:"thread_id"`

	// Enabled turns real delivery on. When false the sender runs in dev
	// mode: every send is logged and reported successful.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Resolver maps a recipient ID to a display handle for the message body.
type Resolver func(ctx context.Context, recipientID string) (string, error)

// Sender delivers jobs to Telegram.
type Sender struct {
	cfg     Config
	resolve Resolver
	logger  *slog.Logger

	// send is swapped in tests.
	send func(chat *tele.Chat, text string, opt *tele.SendOptions) (*tele.Message, error)
}

// Option configures a Sender.
type Option func(*Sender)

// WithLogger sets the sender's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// New creates a chat Sender. The resolver turns recipient IDs into
// display handles; passing nil uses the recipient ID verbatim. When
// cfg.Enabled, the bot token is verified against the Telegram API.
func New(cfg Config, resolve Resolver, opts ...Option) (*Sender, error) {
	if cfg.Enabled {
		if strings.TrimSpace(cfg.Token) == "" {
			return nil, fmt.Errorf("chat: enabled without bot token")
		}
		if cfg.ChatID == 0 {
			return nil, fmt.Errorf("chat: enabled without chat id")
		}
	}
	if resolve == nil {
		resolve = func(_ context.Context, recipientID string) (string, error) {
			return recipientID, nil
		}
	}

	s := &Sender{
		cfg:     cfg,
		resolve: resolve,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Enabled && s.send == nil {
		bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
		if err != nil {
			return nil, fmt.Errorf("chat: create bot: %w", err)
		}
		s.send = func(chat *tele.Chat, text string, opt *tele.SendOptions) (*tele.Message, error) {
			return bot.Send(chat, text, opt)
		}
	}

	return s, nil
}

// Channel implements queue.Sender.
func (s *Sender) Channel() channel.Channel { return channel.Chat }

// Send implements queue.Sender.
func (s *Sender) Send(ctx context.Context, j *job.Job) error {
	handle, err := s.resolve(ctx, j.RecipientID)
	if err != nil {
		return fmt.Errorf("chat: resolve recipient %s: %w", j.RecipientID, err)
	}

	text := renderText(handle, j)

	if !s.cfg.Enabled {
		s.logger.Info("chat delivery disabled, logging notification",
			slog.String("job_id", j.ID.String()),
			slog.String("recipient", handle),
			slog.String("subject", j.Subject),
		)
		return nil
	}

	chat := &tele.Chat{ID: s.cfg.ChatID}
	opt := &tele.SendOptions{
		ParseMode: tele.ModeHTML,
		ThreadID:  s.cfg.ThreadID,
	}

	// telebot's Send has no context support; run it in a goroutine so
	// the per-job deadline still bounds the call.
	done := make(chan error, 1)
	go func() {
		_, sendErr := s.send(chat, text, opt)
		done <- sendErr
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("chat: send to %d: %w", s.cfg.ChatID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("chat: send to %d: %w", s.cfg.ChatID, ctx.Err())
	}
}

// renderText formats one notification for Telegram HTML parse mode. The
// job message is HTML written for email, so it is flattened to plain
// text before re-escaping for Telegram's restricted tag set.
func renderText(handle string, j *job.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(j.Subject))
	fmt.Fprintf(&b, "To: %s\n\n", html.EscapeString(handle))
	b.WriteString(html.EscapeString(email.ToPlainText(j.Message)))
	return b.String()
}
