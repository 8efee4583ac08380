package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/docuvault/docuvault/pkg/auth"
	"github.com/docuvault/docuvault/pkg/contextkeys"
	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/orgs"
)

// OrgContextMiddleware resolves the organization named in the route
// and attaches it to the request context. Lookups are membership
// filtered, so an organization the caller does not belong to is
// indistinguishable from one that does not exist.
func OrgContextMiddleware(service *orgs.Service) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vars := mux.Vars(r)

			orgIDStr, ok := vars["org_id"]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			orgID, err := strconv.ParseInt(orgIDStr, 10, 64)
			if err != nil {
				httputil.WriteBadRequest(w, "Invalid organization ID")
				return
			}

			userID := auth.UserIDFromContext(r.Context())
			if userID == "" {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			org, err := service.GetOrganization(r.Context(), orgID, userID)
			if err != nil {
				if errors.Is(err, orgs.ErrNotFound) {
					httputil.WriteNotFoundError(w, "Organization not found")
					return
				}
				httputil.WriteInternalError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), contextkeys.OrgKey, org)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OrganizationFromContext returns the organization attached by
// OrgContextMiddleware, nil if absent.
func OrganizationFromContext(ctx context.Context) *orgs.Organization {
	if org, ok := ctx.Value(contextkeys.OrgKey).(*orgs.Organization); ok {
		return org
	}
	return nil
}
