package rbac

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/docuvault/docuvault/pkg/audit"
	"github.com/docuvault/docuvault/pkg/auth"
	"github.com/docuvault/docuvault/pkg/contextkeys"
	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/observability"
)

// ErrNoContext is returned by a ContextResolver when the user has no
// current organization. The gate maps it to a 400-class rejection,
// distinct from a permission deny.
var ErrNoContext = errors.New("no organization context available")

// ContextResolver resolves a user's current organization when a
// request names no explicit one. Implemented by the organization
// context store.
type ContextResolver interface {
	CurrentOrganization(ctx context.Context, userID string) (int64, error)
}

// Gate is the request-time authorization decision point. It composes
// identity, organization context resolution and the evaluator, and
// attaches a Grant to the request context on allow.
type Gate struct {
	evaluator *Evaluator
	store     *Store
	catalog   *Catalog
	resolver  ContextResolver
	logger    *observability.Logger
	auditor   *audit.Auditor
}

// NewGate creates an authorization gate.
func NewGate(evaluator *Evaluator, store *Store, catalog *Catalog, resolver ContextResolver, logger *observability.Logger) *Gate {
	return &Gate{
		evaluator: evaluator,
		store:     store,
		catalog:   catalog,
		resolver:  resolver,
		logger:    logger,
		auditor:   audit.NewAuditor(logger),
	}
}

// GrantFromContext returns the Grant attached by a gate check, or nil.
func GrantFromContext(ctx context.Context) *Grant {
	grant, _ := ctx.Value(contextkeys.GrantKey).(*Grant)
	return grant
}

// WithGrant attaches a Grant to the context. Exported for handler
// tests that bypass the middleware.
func WithGrant(ctx context.Context, grant *Grant) context.Context {
	return context.WithValue(ctx, contextkeys.GrantKey, grant)
}

// RequirePermissions requires every listed permission. Unknown
// permission names panic at route configuration time.
func (g *Gate) RequirePermissions(permissions ...string) mux.MiddlewareFunc {
	g.catalog.MustKnow(permissions...)
	return g.requirePermissions(PolicyAll, permissions)
}

// RequireAnyPermission requires at least one of the listed
// permissions.
func (g *Gate) RequireAnyPermission(permissions ...string) mux.MiddlewareFunc {
	g.catalog.MustKnow(permissions...)
	return g.requirePermissions(PolicyAny, permissions)
}

func (g *Gate) requirePermissions(policy Policy, permissions []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserIDFromContext(r.Context())
			if userID == "" {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			orgID, ok := g.resolveOrganization(w, r, userID)
			if !ok {
				return
			}

			var allowed bool
			if policy == PolicyAll {
				allowed = g.evaluator.HasAll(r.Context(), userID, orgID, permissions)
			} else {
				allowed = g.evaluator.HasAny(r.Context(), userID, orgID, permissions)
			}

			if !allowed {
				g.logDeny(r.Context(), userID, orgID, permissions)
				httputil.WriteForbidden(w, "Missing required permission(s): "+strings.Join(permissions, ", "))
				return
			}

			grant := &Grant{
				UserID:      userID,
				OrgID:       orgID,
				Permissions: permissions,
			}
			next.ServeHTTP(w, r.WithContext(WithGrant(r.Context(), grant)))
		})
	}
}

// RequireRoles requires the caller's active membership role in the
// resolved organization to be one of the listed role names.
func (g *Gate) RequireRoles(roles ...string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserIDFromContext(r.Context())
			if userID == "" {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			orgID, ok := g.resolveOrganization(w, r, userID)
			if !ok {
				return
			}

			role, err := g.store.GetMembershipRole(r.Context(), userID, orgID)
			if err != nil {
				g.logDeny(r.Context(), userID, orgID, roles)
				httputil.WriteForbidden(w, "Missing required role(s): "+strings.Join(roles, ", "))
				return
			}

			for _, name := range roles {
				if role.Name == name {
					grant := &Grant{
						UserID:      userID,
						OrgID:       orgID,
						Permissions: role.Permissions,
					}
					next.ServeHTTP(w, r.WithContext(WithGrant(r.Context(), grant)))
					return
				}
			}

			g.logDeny(r.Context(), userID, orgID, roles)
			httputil.WriteForbidden(w, "Missing required role(s): "+strings.Join(roles, ", "))
		})
	}
}

// RequireSystemAdmin requires a durable system-wide administrator
// record. It does not resolve organization context; system admin
// status is global.
func (g *Gate) RequireSystemAdmin() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserIDFromContext(r.Context())
			if userID == "" {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			isAdmin, err := g.store.IsSystemAdmin(r.Context(), userID)
			if err != nil || !isAdmin {
				if err != nil {
					g.logger.WithError(err).WithField("user_id", userID).Warn("system admin check failed, denying")
				}
				httputil.WriteForbidden(w, "System administrator access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// resolveOrganization picks the target organization: an explicit
// org_id route variable or query parameter wins; otherwise the user's
// current context. It writes the rejection itself and returns
// ok=false when no organization can be determined.
func (g *Gate) resolveOrganization(w http.ResponseWriter, r *http.Request, userID string) (int64, bool) {
	if raw, found := mux.Vars(r)["org_id"]; found {
		orgID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || orgID <= 0 {
			httputil.WriteBadRequest(w, "Invalid organization ID")
			return 0, false
		}
		return orgID, true
	}

	if raw := r.URL.Query().Get("org_id"); raw != "" {
		orgID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || orgID <= 0 {
			httputil.WriteBadRequest(w, "Invalid organization ID")
			return 0, false
		}
		return orgID, true
	}

	orgID, err := g.resolver.CurrentOrganization(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNoContext) {
			httputil.WriteBadRequest(w, "No organization context available")
			return 0, false
		}
		g.logger.WithError(err).WithField("user_id", userID).Error("failed to resolve organization context")
		httputil.WriteInternalError(w, errors.New("failed to resolve organization context"))
		return 0, false
	}
	return orgID, true
}

func (g *Gate) logDeny(ctx context.Context, userID string, orgID int64, required []string) {
	g.logger.WithField("request_id", observability.GetRequestID(ctx)).WithFields(map[string]interface{}{
		"user_id":  userID,
		"org_id":   orgID,
		"required": strings.Join(required, ","),
	}).Warn("authorization denied")
	g.auditor.AccessDenied(ctx, userID, orgID, required)
}
