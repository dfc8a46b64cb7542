package gateway

import "context"

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyInternalProbe marks a lookup request issued by the interceptor
	ContextKeyInternalProbe ContextKey = "internal_probe"
)

// WithInternalProbe marks ctx as belonging to a system-internal lookup.
// Authorization layers below the interceptor treat such requests as
// pre-authorized.
func WithInternalProbe(ctx context.Context) context.Context {
	return context.WithValue(ctx, ContextKeyInternalProbe, true)
}

// IsInternalProbe reports whether the request context was created by
// WithInternalProbe.
func IsInternalProbe(ctx context.Context) bool {
	v, _ := ctx.Value(ContextKeyInternalProbe).(bool)
	return v
}
