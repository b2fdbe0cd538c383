package collective

import "context"

type roundIDKey struct{}

// WithRoundID attaches a correlation ID to ctx that transports may surface
// in logs, metrics, or (for KafkaTransport) message headers, so every
// archive belonging to the same shuffle round can be traced across workers.
func WithRoundID(ctx context.Context, roundID string) context.Context {
	return context.WithValue(ctx, roundIDKey{}, roundID)
}

// RoundIDFromContext returns the correlation ID attached by WithRoundID, if
// any.
func RoundIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(roundIDKey{}).(string)
	return id, ok
}
