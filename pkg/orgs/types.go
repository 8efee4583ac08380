package orgs

import (
	"errors"
	"time"
)

// SubscriptionTier represents subscription plan tiers.
type SubscriptionTier string

const (
	TierFree         SubscriptionTier = "free"
	TierStarter      SubscriptionTier = "starter"
	TierProfessional SubscriptionTier = "professional"
	TierEnterprise   SubscriptionTier = "enterprise"
)

// Valid reports whether the tier is one of the known values.
func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierFree, TierStarter, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

// SubscriptionStatus represents the subscription lifecycle state.
type SubscriptionStatus string

const (
	StatusTrial     SubscriptionStatus = "trial"
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

// Valid reports whether the status is one of the known values.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusPastDue, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Sentinel errors for the package. Handlers map these to status codes.
var (
	// ErrNotFound is returned when an entity is absent or row
	// filtering hides it from the caller.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyMember is returned when adding a member whose
	// (organization, user) pair already has an active row.
	ErrAlreadyMember = errors.New("user is already an active member of this organization")

	// ErrNotMember is returned when an operation requires an active
	// membership the user does not have.
	ErrNotMember = errors.New("user is not an active member of this organization")

	// ErrSlugTaken is returned when an organization slug collides
	// with an existing one.
	ErrSlugTaken = errors.New("organization slug already in use")

	// ErrInvalidSlug is returned when a caller-supplied slug is empty
	// or not URL-safe.
	ErrInvalidSlug = errors.New("invalid organization slug")

	// ErrUnknownRole is returned when a membership write names a role
	// that does not exist.
	ErrUnknownRole = errors.New("unknown role")

	// ErrConfiguration marks missing reference data, such as the
	// org_owner role. It is an operational misconfiguration, not a
	// caller error.
	ErrConfiguration = errors.New("configuration error")
)

// Organization is the tenant unit owning members, documents and
// quotas.
type Organization struct {
	ID                 int64              `json:"id"`
	Name               string             `json:"name"`
	Slug               string             `json:"slug"`
	Description        string             `json:"description"`
	SubscriptionTier   SubscriptionTier   `json:"subscription_tier"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	MaxUsers           int                `json:"max_users"`
	MaxDocuments       int                `json:"max_documents"`
	MaxStorageBytes    int64              `json:"max_storage_bytes"`
	Settings           map[string]any     `json:"settings,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Member binds a user to an organization with a role. RoleName and
// RoleDisplayName are denormalized from the joined role row for
// listing.
type Member struct {
	ID                   int64      `json:"id"`
	OrganizationID       int64      `json:"organization_id"`
	UserID               string     `json:"user_id"`
	RoleID               int64      `json:"role_id"`
	RoleName             string     `json:"role_name,omitempty"`
	RoleDisplayName      string     `json:"role_display_name,omitempty"`
	IsActive             bool       `json:"is_active"`
	InvitedBy            string     `json:"invited_by,omitempty"`
	JoinedAt             time.Time  `json:"joined_at"`
	InvitationAcceptedAt *time.Time `json:"invitation_accepted_at,omitempty"`
}

// CreateOrgRequest is the caller-facing creation payload. Slug is
// generated from the name when empty.
type CreateOrgRequest struct {
	Name        string         `json:"name"`
	Slug        string         `json:"slug,omitempty"`
	Description string         `json:"description,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
}

// UpdateOrgRequest carries a partial update. Nil fields are left
// unchanged; an explicit empty string overwrites.
type UpdateOrgRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
}

// AdminUpdateOrgRequest extends UpdateOrgRequest with subscription and
// quota fields only system administrators may change.
type AdminUpdateOrgRequest struct {
	UpdateOrgRequest
	Slug               *string             `json:"slug,omitempty"`
	SubscriptionTier   *SubscriptionTier   `json:"subscription_tier,omitempty"`
	SubscriptionStatus *SubscriptionStatus `json:"subscription_status,omitempty"`
	MaxUsers           *int                `json:"max_users,omitempty"`
	MaxDocuments       *int                `json:"max_documents,omitempty"`
	MaxStorageBytes    *int64              `json:"max_storage_bytes,omitempty"`
}

// AddMemberRequest adds a user to an organization with a named role.
type AddMemberRequest struct {
	UserID   string `json:"user_id"`
	RoleName string `json:"role_name"`
}

// UpdateMemberRequest changes a member's role or active flag. Nil
// fields are left unchanged.
type UpdateMemberRequest struct {
	RoleName *string `json:"role_name,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}
