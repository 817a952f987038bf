package otel

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// SpanIDs extracts the trace and span IDs from ctx. Both are empty when
// ctx carries no recording span (OTel disabled or outside a request).
func SpanIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// ZerologHook returns a zerolog event func that attaches trace_id and
// span_id when ctx has an active span, so log lines can be joined to
// traces:
//
//	log.Info().Func(otel.ZerologHook(ctx)).Msg("pseudonymized document")
//
// With no active span the event is left untouched.
func ZerologHook(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		traceID, spanID := SpanIDs(ctx)
		if traceID == "" {
			return
		}
		e.Str("trace_id", traceID).Str("span_id", spanID)
	}
}
