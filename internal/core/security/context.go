// Package security carries the acting user and the accounting-period policy.
package security

import "context"

type actorKey struct{}

// WithActor adds the acting user id to context.
// The HTTP layer takes it from a header set by the upstream gateway.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor returns the acting user id or empty string.
func GetActor(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok {
		return v
	}
	return ""
}
