package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docuvault/docuvault/pkg/audit"
	"github.com/docuvault/docuvault/pkg/auth"
	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/middleware"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/orgs"
	"github.com/docuvault/docuvault/pkg/rbac"
)

// OrgHandlers handles the organization lifecycle endpoints.
type OrgHandlers struct {
	service      *orgs.Service
	contexts     *orgs.ContextStore
	bootstrapper *orgs.Bootstrapper
	gate         *rbac.Gate
	logger       *observability.Logger
	auditor      *audit.Auditor
}

// NewOrgHandlers creates the organization handlers. bootstrapper may
// be nil to disable personal-organization provisioning.
func NewOrgHandlers(service *orgs.Service, contexts *orgs.ContextStore, bootstrapper *orgs.Bootstrapper, gate *rbac.Gate, logger *observability.Logger) *OrgHandlers {
	return &OrgHandlers{
		service:      service,
		contexts:     contexts,
		bootstrapper: bootstrapper,
		gate:         gate,
		logger:       logger,
		auditor:      audit.NewAuditor(logger),
	}
}

// RegisterRoutes registers the organization routes. Mutating routes
// carry their permission gates here, so an unknown permission name
// fails at startup, not at request time.
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/organizations", h.CreateOrganization).Methods("POST")
	router.HandleFunc("/organizations", h.ListOrganizations).Methods("GET")
	router.HandleFunc("/organizations/current/details", h.CurrentOrganization).Methods("GET")

	router.Handle("/organizations/{org_id:[0-9]+}",
		middleware.OrgContextMiddleware(h.service)(http.HandlerFunc(h.GetOrganization))).Methods("GET")
	router.Handle("/organizations/{org_id:[0-9]+}",
		h.gate.RequirePermissions(rbac.PermOrgManage)(http.HandlerFunc(h.UpdateOrganization))).Methods("PUT")
	router.Handle("/organizations/{org_id:[0-9]+}/admin",
		h.gate.RequireSystemAdmin()(http.HandlerFunc(h.AdminUpdateOrganization))).Methods("PUT")

	router.HandleFunc("/organizations/{org_id:[0-9]+}/set-current", h.SetCurrentOrganization).Methods("POST")

	router.Handle("/organizations/{org_id:[0-9]+}/members",
		h.gate.RequireAnyPermission(rbac.PermDocumentView)(http.HandlerFunc(h.ListMembers))).Methods("GET")
	router.Handle("/organizations/{org_id:[0-9]+}/members",
		h.gate.RequirePermissions(rbac.PermUserInvite)(http.HandlerFunc(h.AddMember))).Methods("POST")
	router.Handle("/organizations/{org_id:[0-9]+}/members/{member_id:[0-9]+}",
		h.gate.RequirePermissions(rbac.PermRoleAssign)(http.HandlerFunc(h.UpdateMember))).Methods("PUT")
	router.Handle("/organizations/{org_id:[0-9]+}/members/{member_id:[0-9]+}",
		h.gate.RequirePermissions(rbac.PermUserRemove)(http.HandlerFunc(h.RemoveMember))).Methods("DELETE")
}

// CreateOrganization creates an organization owned by the caller.
func (h *OrgHandlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req orgs.CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	org, err := h.service.CreateOrganization(r.Context(), &req, userID)
	if err != nil {
		h.writeOrgError(w, err)
		return
	}

	h.auditor.Record(r.Context(), audit.Event{
		Type:   audit.EventOrgCreated,
		UserID: userID,
		OrgID:  org.ID,
	})
	httputil.WriteCreated(w, org)
}

// ListOrganizations lists the caller's organizations. When bootstrap
// is enabled the caller's personal organization is provisioned first,
// so a fresh user's first listing already contains a workspace.
func (h *OrgHandlers) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if h.bootstrapper != nil {
		if authCtx := auth.FromContext(r.Context()); authCtx != nil {
			h.bootstrapper.EnsurePersonalOrganization(r.Context(), authCtx.Identity)
		}
	}

	organizations, err := h.service.ListOrganizations(r.Context(), userID)
	if err != nil {
		h.writeOrgError(w, err)
		return
	}
	if organizations == nil {
		organizations = []*orgs.Organization{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"organizations": organizations})
}

// GetOrganization returns one of the caller's organizations. The
// membership-filtered lookup has already run in OrgContextMiddleware.
func (h *OrgHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org := middleware.OrganizationFromContext(r.Context())
	if org == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}
	httputil.WriteSuccess(w, org)
}

// UpdateOrganization applies a caller-editable partial update. The
// org.manage gate has already run.
func (h *OrgHandlers) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req orgs.UpdateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := h.service.UpdateOrganization(r.Context(), orgID, &req)
	if err != nil {
		h.writeOrgError(w, err)
		return
	}

	h.auditor.Record(r.Context(), audit.Event{
		Type:   audit.EventOrgUpdated,
		UserID: auth.UserIDFromContext(r.Context()),
		OrgID:  orgID,
	})
	httputil.WriteSuccess(w, org)
}

// AdminUpdateOrganization applies a system-admin partial update
// including slug, subscription and quota fields.
func (h *OrgHandlers) AdminUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req orgs.AdminUpdateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := h.service.AdminUpdateOrganization(r.Context(), orgID, &req)
	if err != nil {
		h.writeOrgError(w, err)
		return
	}

	h.auditor.Record(r.Context(), audit.Event{
		Type:   audit.EventOrgAdminUpdated,
		UserID: auth.UserIDFromContext(r.Context()),
		OrgID:  orgID,
	})
	httputil.WriteSuccess(w, org)
}

// SetCurrentOrganization switches the caller's current organization.
func (h *OrgHandlers) SetCurrentOrganization(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	if err := h.contexts.SetCurrentOrganization(r.Context(), userID, orgID); err != nil {
		if errors.Is(err, orgs.ErrNotMember) {
			httputil.WriteForbidden(w, "Not an active member of this organization")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.Event{
		Type:   audit.EventContextSwitched,
		UserID: userID,
		OrgID:  orgID,
	})
	httputil.WriteSuccess(w, map[string]interface{}{"current_organization_id": orgID})
}

// CurrentOrganization returns the details of the caller's current
// organization.
func (h *OrgHandlers) CurrentOrganization(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	orgID, err := h.contexts.CurrentOrganization(r.Context(), userID)
	if err != nil {
		if errors.Is(err, rbac.ErrNoContext) {
			httputil.WriteBadRequest(w, "No organization context available")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	org, err := h.service.GetOrganization(r.Context(), orgID, userID)
	if err != nil {
		h.writeOrgError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// ListMembers lists an organization's members with role details.
func (h *OrgHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), orgID)
	if err != nil {
		h.writeOrgError(w, err)
		return
	}
	if members == nil {
		members = []*orgs.Member{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

// AddMember invites a user into the organization.
func (h *OrgHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req orgs.AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	member, err := h.service.AddMember(r.Context(), orgID, &req, userID)
	if err != nil {
		h.writeOrgError(w, err)
		return
	}

	h.auditor.Record(r.Context(), audit.Event{
		Type:   audit.EventMemberAdded,
		UserID: userID,
		OrgID:  orgID,
		Metadata: map[string]interface{}{
			"member_user_id": req.UserID,
			"role_name":      member.RoleName,
		},
	})
	httputil.WriteCreated(w, member)
}

// UpdateMember changes a member's role or active flag.
func (h *OrgHandlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "member_id")
	if !ok {
		return
	}

	var req orgs.UpdateMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	member, err := h.service.UpdateMember(r.Context(), orgID, memberID, &req)
	if err != nil {
		h.writeOrgError(w, err)
		return
	}

	h.auditor.Record(r.Context(), audit.Event{
		Type:   audit.EventMemberRoleChanged,
		UserID: auth.UserIDFromContext(r.Context()),
		OrgID:  orgID,
		Metadata: map[string]interface{}{
			"member_id": memberID,
			"role_name": member.RoleName,
		},
	})
	httputil.WriteSuccess(w, member)
}

// RemoveMember deactivates a membership.
func (h *OrgHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "member_id")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), orgID, memberID); err != nil {
		h.writeOrgError(w, err)
		return
	}

	h.auditor.Record(r.Context(), audit.Event{
		Type:   audit.EventMemberRemoved,
		UserID: auth.UserIDFromContext(r.Context()),
		OrgID:  orgID,
		Metadata: map[string]interface{}{
			"member_id": memberID,
		},
	})
	httputil.WriteNoContent(w)
}

func (h *OrgHandlers) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteUnauthorized(w, "Authentication required")
		return "", false
	}
	return userID, true
}

func (h *OrgHandlers) writeOrgError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orgs.ErrNotFound):
		httputil.WriteNotFoundError(w, "Not found")
	case errors.Is(err, orgs.ErrSlugTaken):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, orgs.ErrAlreadyMember):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, orgs.ErrUnknownRole):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, orgs.ErrInvalidSlug):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, orgs.ErrConfiguration):
		h.logger.WithError(err).Error("organization operation hit a configuration error")
		httputil.WriteInternalError(w, err)
	default:
		httputil.WriteInternalError(w, err)
	}
}
