package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/rbac"
)

// Service manages the organization lifecycle. All mutations
// invalidate the decision cache for the affected user so stale
// permission decisions do not outlive a membership change.
type Service struct {
	db      *sql.DB
	store   *Store
	roles   *rbac.Store
	cache   *rbac.DecisionCache
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewService creates an organization service.
func NewService(db *sql.DB, roles *rbac.Store, cache *rbac.DecisionCache, metrics *observability.Metrics, logger *observability.Logger) *Service {
	return &Service{
		db:      db,
		store:   NewStore(db),
		roles:   roles,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// Store exposes the underlying organization store.
func (s *Service) Store() *Store {
	return s.store
}

// CreateOrganization creates the organization and binds the creator
// as org_owner in one transaction. An organization must never be left
// without an owner, so a failed membership insert rolls the creation
// back and the whole call fails.
func (s *Service) CreateOrganization(ctx context.Context, req *CreateOrgRequest, ownerUserID string) (*Organization, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("organization name is required")
	}
	if req.Slug != "" && !ValidSlug(req.Slug) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlug, req.Slug)
	}

	ownerRole, err := s.roles.GetRoleByName(ctx, rbac.RoleOrgOwner)
	if err != nil {
		return nil, fmt.Errorf("%w: %s role not found: %v", ErrConfiguration, rbac.RoleOrgOwner, err)
	}

	org := &Organization{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Settings:    req.Settings,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.CreateOrganizationTx(ctx, tx, org); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role_id, is_active, invitation_accepted_at)
		VALUES ($1, $2, $3, TRUE, NOW())
	`, org.ID, ownerUserID, ownerRole.ID)
	if err != nil {
		return nil, fmt.Errorf("organization creation failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("organization creation failed: %w", err)
	}

	s.invalidateDecisions(ctx, ownerUserID, "organization_created")
	s.logger.WithFields(map[string]interface{}{
		"org_id": org.ID,
		"slug":   org.Slug,
		"owner":  ownerUserID,
	}).Info("organization created")

	return org, nil
}

// GetOrganization returns the organization if the caller actively
// belongs to it; otherwise ErrNotFound.
func (s *Service) GetOrganization(ctx context.Context, id int64, userID string) (*Organization, error) {
	return s.store.GetOrganizationForUser(ctx, id, userID)
}

// GetOrganizationBySlug returns an organization by slug.
func (s *Service) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	return s.store.GetOrganizationBySlug(ctx, slug)
}

// ListOrganizations lists the caller's organizations.
func (s *Service) ListOrganizations(ctx context.Context, userID string) ([]*Organization, error) {
	return s.store.ListOrganizationsForUser(ctx, userID)
}

// UpdateOrganization applies a partial update to the caller-editable
// fields. Nil fields are left unchanged.
func (s *Service) UpdateOrganization(ctx context.Context, id int64, updates *UpdateOrgRequest) (*Organization, error) {
	if err := s.store.UpdateOrganization(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.store.GetOrganization(ctx, id)
}

// AdminUpdateOrganization applies a partial update including
// subscription tier, status and quotas.
func (s *Service) AdminUpdateOrganization(ctx context.Context, id int64, updates *AdminUpdateOrgRequest) (*Organization, error) {
	if updates.Slug != nil && !ValidSlug(*updates.Slug) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlug, *updates.Slug)
	}
	if updates.SubscriptionTier != nil && !updates.SubscriptionTier.Valid() {
		return nil, fmt.Errorf("invalid subscription tier: %s", *updates.SubscriptionTier)
	}
	if updates.SubscriptionStatus != nil && !updates.SubscriptionStatus.Valid() {
		return nil, fmt.Errorf("invalid subscription status: %s", *updates.SubscriptionStatus)
	}
	if updates.MaxUsers != nil && *updates.MaxUsers < 0 {
		return nil, fmt.Errorf("max_users must be non-negative")
	}
	if updates.MaxDocuments != nil && *updates.MaxDocuments < 0 {
		return nil, fmt.Errorf("max_documents must be non-negative")
	}
	if updates.MaxStorageBytes != nil && *updates.MaxStorageBytes < 0 {
		return nil, fmt.Errorf("max_storage_bytes must be non-negative")
	}

	if err := s.store.AdminUpdateOrganization(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.store.GetOrganization(ctx, id)
}

func (s *Service) invalidateDecisions(ctx context.Context, userID, reason string) {
	if err := s.cache.InvalidateUser(ctx, userID, reason); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("failed to invalidate decision cache")
	}
}
