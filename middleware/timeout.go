package middleware

import (
	"context"
	"log/slog"

	"github.com/xraph/escalate/job"
)

// Timeout returns middleware that enforces the per-job send deadline.
// If the job has a non-zero Timeout, a context.WithTimeout wraps the
// sender call; when the deadline passes the context is cancelled and the
// sender must fail rather than hang on network I/O.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Timeout > 0 {
			logger.Debug("send deadline set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", j.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, j.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
