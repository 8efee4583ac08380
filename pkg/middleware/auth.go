package middleware

import (
	"net/http"
	"strings"

	"github.com/docuvault/docuvault/pkg/auth"
	"github.com/docuvault/docuvault/pkg/httputil"
)

// AuthMiddleware verifies bearer tokens and attaches the caller's
// identity to the request context.
type AuthMiddleware struct {
	provider auth.Provider
	optional bool // if true, unauthenticated requests pass through
}

// NewAuthMiddleware creates an authentication middleware backed by the
// given identity provider.
func NewAuthMiddleware(provider auth.Provider, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		provider: provider,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		identity, err := m.provider.Authenticate(r.Context(), token)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := auth.WithContext(r.Context(), &auth.Context{Identity: *identity})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
