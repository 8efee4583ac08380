package auth

import (
	"context"

	"github.com/docuvault/docuvault/pkg/contextkeys"
)

// WithContext attaches the authenticated context to a request context
func WithContext(ctx context.Context, authCtx *Context) context.Context {
	return context.WithValue(ctx, contextkeys.AuthKey, authCtx)
}

// FromContext extracts the authenticated context, nil if absent
func FromContext(ctx context.Context) *Context {
	if authCtx, ok := ctx.Value(contextkeys.AuthKey).(*Context); ok {
		return authCtx
	}
	return nil
}

// UserIDFromContext returns the authenticated user ID, empty if absent
func UserIDFromContext(ctx context.Context) string {
	if authCtx := FromContext(ctx); authCtx != nil {
		return authCtx.Identity.UserID
	}
	return ""
}
