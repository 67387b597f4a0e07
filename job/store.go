package job

import (
	"context"

	"github.com/xraph/escalate/channel"
	"github.com/xraph/escalate/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Channel filters by channel. Empty means all channels.
	Channel channel.Channel
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Channel filters by channel. Empty means all channels.
	Channel channel.Channel
	// State filters by job state. Empty means all states.
	State State
}

// Store defines the persistence contract for notification jobs. Multiple
// worker processes may pull from the same store; DequeueJobs must provide
// exactly-one-claim semantics.
type Store interface {
	// EnqueueJob persists a new job in pending state.
	EnqueueJob(ctx context.Context, j *Job) error

	// DequeueJobs atomically claims up to limit due pending jobs from the
	// given channels, sets them to processing, and returns them. Jobs are
	// ordered by priority (descending) then RunAt (ascending).
	DequeueJobs(ctx context.Context, channels []channel.Channel, limit int) ([]*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// CancelJob transitions a pending job to cancelled. A job in any
	// other state returns escalate.ErrNotCancellable: a claimed job runs
	// to completion.
	CancelJob(ctx context.Context, jobID id.JobID) error

	// ListJobsByState returns jobs matching the given state, backing the
	// surrounding system's notification log.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
