package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/job"
)

func TestToPlainText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips tags",
			in:   "<p>Task <b>Report</b> is overdue.</p>",
			want: "Task Report is overdue.",
		},
		{
			name: "drops script and style blocks",
			in:   "<style>p{color:red}</style><script>alert(1)</script><p>Hello</p>",
			want: "Hello",
		},
		{
			name: "block closers become line breaks",
			in:   "<p>First</p><p>Second</p>",
			want: "First\nSecond",
		},
		{
			name: "br becomes line break",
			in:   "line one<br/>line two",
			want: "line one\nline two",
		},
		{
			name: "decodes entities",
			in:   "Q&amp;A &lt;draft&gt;",
			want: "Q&A <draft>",
		},
		{
			name: "collapses whitespace",
			in:   "<p>too    many\t spaces</p>",
			want: "too many spaces",
		},
		{
			name: "plain text passes through",
			in:   "no markup here",
			want: "no markup here",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToPlainText(tc.in); got != tc.want {
				t.Fatalf("ToPlainText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSend_DevModeLogsWithoutDialing(t *testing.T) {
	s, err := New(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("dev mode must not dial SMTP")
		return nil
	}

	j := job.New("escalation", channel.Email, "dev@example.com", "subject", "<p>body</p>")
	if err := s.Send(context.Background(), j); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestSend_BuildsMultipartMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	s, err := New(Config{
		Enabled: true,
		Host:    "mail.example.com",
		Port:    2525,
		From:    "escalate@example.com",
	}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	j := job.New("escalation", channel.Email, "user@example.com", "Task overdue", "<p>Report is <b>3 days</b> late.</p>")
	if err := s.Send(context.Background(), j); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotAddr != "mail.example.com:2525" {
		t.Fatalf("dialed %q, want mail.example.com:2525", gotAddr)
	}
	if gotFrom != "escalate@example.com" {
		t.Fatalf("from = %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "user@example.com" {
		t.Fatalf("to = %v", gotTo)
	}

	msg := string(gotMsg)
	if !strings.Contains(msg, "Content-Type: multipart/alternative") {
		t.Fatal("message is not multipart/alternative")
	}
	if !strings.Contains(msg, "Content-Type: text/plain") || !strings.Contains(msg, "Report is 3 days late.") {
		t.Fatal("plain-text part missing or not derived from HTML")
	}
	if !strings.Contains(msg, "Content-Type: text/html") || !strings.Contains(msg, "<b>3 days</b>") {
		t.Fatal("HTML part missing")
	}
}

func TestSend_ResolverError(t *testing.T) {
	resolveErr := errors.New("unknown recipient")
	s, err := New(Config{Enabled: false}, func(context.Context, string) (string, error) {
		return "", resolveErr
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	j := job.New("escalation", channel.Email, "p1", "s", "m")
	if err := s.Send(context.Background(), j); !errors.Is(err, resolveErr) {
		t.Fatalf("send error = %v, want wrapped resolver error", err)
	}
}

func TestNew_ValidatesEnabledConfig(t *testing.T) {
	if _, err := New(Config{Enabled: true, From: "a@b.c"}, nil); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := New(Config{Enabled: true, Host: "mail.example.com"}, nil); err == nil {
		t.Fatal("expected error for missing from address")
	}
}

func TestSender_Channel(t *testing.T) {
	s, _ := New(Config{}, nil)
	if s.Channel() != channel.Email {
		t.Fatalf("channel = %s, want email", s.Channel())
	}
}
