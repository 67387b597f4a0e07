package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/escalate/job"
)

// Recover returns middleware that recovers from panics in a sender.
// Panics are converted to errors and logged with a stack trace, so the
// owning queue applies its normal retry policy.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("sender panicked",
					slog.String("job_id", j.ID.String()),
					slog.String("channel", j.Channel.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic delivering job %s: %v", j.ID.String(), r)
			}
		}()
		return next(ctx)
	}
}
