// Package channel defines the notification transport identifiers. Each
// channel (email, chat, ...) has its own queue, concurrency limit, and
// sender implementation; the queue depends only on the queue.Sender
// interface, so new channels can be added without touching matching or
// dispatch logic.
package channel

// Channel identifies a notification transport.
type Channel string

const (
	// Email delivers via an SMTP transport.
	Email Channel = "email"
	// Chat posts to a chat channel.
	Chat Channel = "chat"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case Email, Chat:
		return true
	default:
		return false
	}
}

// String returns the channel name.
func (c Channel) String() string { return string(c) }
