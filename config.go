package escalate

import "time"

// Config holds pipeline-wide configuration. Per-channel settings
// (concurrency, rate limits) live in queue.Config.
type Config struct {
	// MaxRetries is the number of retries allowed after the initial
	// delivery failure. Jobs exceeding it are marked failed.
	MaxRetries int

	// BackoffBase is the delay before the first retry. Subsequent
	// retries double it (5s, 10s, 20s, ...).
	BackoffBase time.Duration

	// SendTimeout bounds a single sender call. Zero means no deadline.
	SendTimeout time.Duration

	// PollInterval is how often queue workers poll for due jobs.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with the stock delivery policy:
// three retries with exponential backoff running 5s, 10s, 20s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BackoffBase:     5 * time.Second,
		SendTimeout:     30 * time.Second,
		PollInterval:    time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
