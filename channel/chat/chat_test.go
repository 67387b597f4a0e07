package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/job"
)

func TestSend_DevModeSkipsTelegram(t *testing.T) {
	s, err := New(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.send = func(*tele.Chat, string, *tele.SendOptions) (*tele.Message, error) {
		t.Fatal("dev mode must not call Telegram")
		return nil, nil
	}

	j := job.New("escalation", channel.Chat, "p1", "subject", "<p>body</p>")
	if err := s.Send(context.Background(), j); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestSend_DeliversToConfiguredChat(t *testing.T) {
	var gotChat *tele.Chat
	var gotText string
	var gotOpt *tele.SendOptions

	s := &Sender{
		cfg: Config{Enabled: true, ChatID: -100123, ThreadID: 7},
		resolve: func(_ context.Context, recipientID string) (string, error) {
			return "@" + recipientID, nil
		},
		send: func(chat *tele.Chat, text string, opt *tele.SendOptions) (*tele.Message, error) {
			gotChat, gotText, gotOpt = chat, text, opt
			return &tele.Message{ID: 1}, nil
		},
	}

	j := job.New("escalation", channel.Chat, "alice", "Task <Report> overdue", "<p>3 days &amp; counting</p>")
	if err := s.Send(context.Background(), j); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotChat == nil || gotChat.ID != -100123 {
		t.Fatalf("sent to chat %+v, want -100123", gotChat)
	}
	if gotOpt.ThreadID != 7 {
		t.Fatalf("thread id = %d, want 7", gotOpt.ThreadID)
	}
	if gotOpt.ParseMode != tele.ModeHTML {
		t.Fatalf("parse mode = %q, want HTML", gotOpt.ParseMode)
	}
	if !strings.Contains(gotText, "<b>Task &lt;Report&gt; overdue</b>") {
		t.Fatalf("subject not escaped/bolded: %q", gotText)
	}
	if !strings.Contains(gotText, "To: @alice") {
		t.Fatalf("recipient handle missing: %q", gotText)
	}
	// Email HTML flattened, then re-escaped for Telegram.
	if !strings.Contains(gotText, "3 days &amp; counting") {
		t.Fatalf("body not flattened and escaped: %q", gotText)
	}
}

func TestSend_PropagatesTelegramError(t *testing.T) {
	apiErr := errors.New("telegram: chat not found")
	s := &Sender{
		cfg:     Config{Enabled: true, ChatID: 1},
		resolve: func(_ context.Context, id string) (string, error) { return id, nil },
		send: func(*tele.Chat, string, *tele.SendOptions) (*tele.Message, error) {
			return nil, apiErr
		},
	}

	j := job.New("escalation", channel.Chat, "p1", "s", "m")
	if err := s.Send(context.Background(), j); !errors.Is(err, apiErr) {
		t.Fatalf("send error = %v, want wrapped API error", err)
	}
}

func TestNew_ValidatesEnabledConfig(t *testing.T) {
	if _, err := New(Config{Enabled: true, ChatID: 1}, nil); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := New(Config{Enabled: true, Token: "t"}, nil); err == nil {
		t.Fatal("expected error for missing chat id")
	}
}

func TestSender_Channel(t *testing.T) {
	s, _ := New(Config{}, nil)
	if s.Channel() != channel.Chat {
		t.Fatalf("channel = %s, want chat", s.Channel())
	}
}
