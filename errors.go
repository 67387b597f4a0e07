package escalate

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("escalate: no store configured")
	ErrStoreClosed     = errors.New("escalate: store closed")
	ErrMigrationFailed = errors.New("escalate: migration failed")

	// Not found errors.
	ErrJobNotFound  = errors.New("escalate: job not found")
	ErrRuleNotFound = errors.New("escalate: rule not found")
	ErrDLQNotFound  = errors.New("escalate: dlq entry not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("escalate: job already exists")

	// State errors.
	ErrNotCancellable     = errors.New("escalate: job is not in a cancellable state")
	ErrInvalidState       = errors.New("escalate: invalid state transition")
	ErrMaxRetriesExceeded = errors.New("escalate: max retries exceeded")

	// Configuration errors.
	ErrNoSender = errors.New("escalate: no sender configured for channel")
	ErrNoSource = errors.New("escalate: no snapshot source configured")
)
