package dlq

import (
	"context"
	"time"

	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/id"
)

// ListOpts controls pagination and filtering for DLQ list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Channel filters by channel. Empty means all channels.
	Channel channel.Channel
}

// Store defines the persistence contract for dead-letter entries.
type Store interface {
	// PushEntry persists a new entry.
	PushEntry(ctx context.Context, e *Entry) error

	// GetEntry retrieves an entry by ID.
	GetEntry(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// ListEntries returns entries ordered by FailedAt ascending.
	ListEntries(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// MarkReplayed records that an entry was replayed.
	MarkReplayed(ctx context.Context, entryID id.DLQID, at time.Time) error

	// PurgeEntries removes entries that failed before the given time and
	// returns how many were removed.
	PurgeEntries(ctx context.Context, before time.Time) (int64, error)

	// CountEntries returns the total number of entries.
	CountEntries(ctx context.Context) (int64, error)
}
