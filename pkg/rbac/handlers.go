package rbac

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docuvault/docuvault/pkg/auth"
	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/observability"
)

// Handlers provides HTTP handlers for the role and permission catalog.
type Handlers struct {
	store  *Store
	logger *observability.Logger
}

// NewHandlers creates catalog handlers.
func NewHandlers(store *Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// RegisterRoutes registers catalog routes on the router. Routes are
// read-only and require only an authenticated caller.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/organizations/roles/", h.ListRoles).Methods("GET")
	router.HandleFunc("/organizations/permissions/", h.ListPermissions).Methods("GET")
	router.HandleFunc("/organizations/{org_id}/my-permissions", h.MyPermissions).Methods("GET")
}

// ListRoles returns every role with its permission names.
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list roles")
		httputil.WriteInternalError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

// ListPermissions returns the permission catalog, optionally filtered
// by the category query parameter.
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	category := httputil.ParseQueryString(r, "category", "")

	permissions, err := h.store.ListPermissions(r.Context(), category)
	if err != nil {
		h.logger.WithError(err).Error("failed to list permissions")
		httputil.WriteInternalError(w, err)
		return
	}
	if permissions == nil {
		permissions = []Permission{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{"permissions": permissions})
}

// MyPermissions returns the caller's permission names in the named
// organization. A caller with no active membership gets an empty
// list.
func (h *Handlers) MyPermissions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	permissions, err := h.store.GetUserPermissions(r.Context(), userID, orgID)
	if err != nil {
		h.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id": userID,
			"org_id":  orgID,
		}).Error("failed to get user permissions")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"org_id":      orgID,
		"permissions": permissions,
	})
}
