package services

import "context"

type contextKey int

const (
	curationIDKey contextKey = iota
	stageKey
	requestIDKey
	roundKey
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithCurationID tags ctx with the curation being worked on. Blank ids leave
// ctx unchanged.
func WithCurationID(ctx context.Context, id string) context.Context {
	return withString(ctx, curationIDKey, id)
}

func CurationIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, curationIDKey)
}

// WithStage tags ctx with the running stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

// WithRequestID tags ctx with a correlation id shared by every log line of
// one stage execution.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

// WithRound tags ctx with the 1-based round number of a multi-round run.
// Non-positive rounds leave ctx unchanged.
func WithRound(ctx context.Context, round int) context.Context {
	if round <= 0 {
		return ctx
	}
	return context.WithValue(ctx, roundKey, round)
}

func RoundFromContext(ctx context.Context) (int, bool) {
	round, ok := ctx.Value(roundKey).(int)
	return round, ok && round > 0
}
