package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/escalate/job"
)

// tracerName is the instrumentation scope name for escalate tracing.
const tracerName = "github.com/xraph/escalate"

// Tracing returns middleware that wraps each send in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through with zero
// overhead.
//
// Span attributes include: escalate.job.id, escalate.channel,
// escalate.recipient_id, escalate.retry_count, escalate.rule_id,
// escalate.item_id. On error, the span status is set to codes.Error with
// the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "escalate.delivery.send",
			trace.WithAttributes(
				attribute.String("escalate.job.id", j.ID.String()),
				attribute.String("escalate.channel", j.Channel.String()),
				attribute.String("escalate.recipient_id", j.RecipientID),
				attribute.Int("escalate.retry_count", j.RetryCount),
				attribute.String("escalate.rule_id", j.RuleID),
				attribute.String("escalate.item_id", j.ItemID),
			),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
