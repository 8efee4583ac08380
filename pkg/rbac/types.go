package rbac

import (
	"time"
)

// Permission name constants for the built-in catalog. Names use the
// dotted "resource.action" form.
const (
	PermDocumentView      = "document.view"
	PermDocumentCreate    = "document.create"
	PermDocumentEdit      = "document.edit"
	PermDocumentDelete    = "document.delete"
	PermDocumentManageAll = "document.manage_all"

	PermUserInvite = "user.invite"
	PermUserRemove = "user.remove"
	PermRoleAssign = "role.assign"

	PermOrgManage     = "org.manage"
	PermBillingManage = "billing.manage"
)

// Permission categories used for catalog grouping and filtering.
const (
	CategoryDocument     = "document"
	CategoryUser         = "user"
	CategoryRole         = "role"
	CategoryOrganization = "organization"
	CategoryBilling      = "billing"
)

// Built-in role names.
const (
	RoleOrgOwner        = "org_owner"
	RoleOrgAdmin        = "org_admin"
	RoleDocumentManager = "document_manager"
	RoleViewer          = "viewer"
)

// Permission is an atomic capability gating one action.
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role is a named bundle of permissions assignable to a membership.
// System roles are seeded from the catalog and are not user-editable.
type Role struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	Description  string    `json:"description"`
	IsSystemRole bool      `json:"is_system_role"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Grant is the authorization token produced by a successful gate
// check. Handlers read it from the request context to learn which
// organization the decision was made against.
type Grant struct {
	UserID      string   `json:"user_id"`
	OrgID       int64    `json:"org_id"`
	Permissions []string `json:"permissions"`
}

// SystemAdmin is a durable system-wide administrator record. System
// admin status is independent of any organization membership.
type SystemAdmin struct {
	UserID    string    `json:"user_id"`
	GrantedBy string    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// Policy selects how a multi-permission requirement composes.
type Policy int

const (
	// PolicyAny allows the request when at least one required
	// permission is granted.
	PolicyAny Policy = iota
	// PolicyAll requires every listed permission.
	PolicyAll
)
