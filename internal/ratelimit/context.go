package ratelimit

import "context"

type contextKey int

const backgroundKey contextKey = iota

// WithBackground marks ctx as a non-interactive background call — cache
// warming and similar back-end jobs — so a Limiter blocks for capacity via
// WaitForAvailability instead of failing fast, per §4.2.
func WithBackground(ctx context.Context) context.Context {
	return context.WithValue(ctx, backgroundKey, true)
}

// IsBackground reports whether ctx was marked via WithBackground.
func IsBackground(ctx context.Context) bool {
	v, _ := ctx.Value(backgroundKey).(bool)
	return v
}
