package queue

import (
	"context"

	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/job"
)

// Sender performs the actual delivery of one notification job over a
// single channel. Implementations live under channel/ (email, chat);
// a Sender must be safe for concurrent use, as every worker goroutine
// of the channel's queue calls it.
type Sender interface {
	// Channel reports which channel this sender delivers on.
	Channel() channel.Channel

	// Send delivers the job. A nil return marks the job sent; an error
	// triggers the retry policy. Send must honor ctx cancellation.
	Send(ctx context.Context, j *job.Job) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc struct {
	Ch   channel.Channel
	Func func(ctx context.Context, j *job.Job) error
}

// Channel implements Sender.
func (s SenderFunc) Channel() channel.Channel { return s.Ch }

// Send implements Sender.
func (s SenderFunc) Send(ctx context.Context, j *job.Job) error { return s.Func(ctx, j) }
