package core

import "context"

type contextKey string

const ctxKeyOwner contextKey = "owner_id"

// ContextWithOwner records the authenticated owner of a request.
func ContextWithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ctxKeyOwner, ownerID)
}

// OwnerFromContext returns the authenticated owner, or "" when absent.
func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyOwner).(string); ok {
		return v
	}
	return ""
}
