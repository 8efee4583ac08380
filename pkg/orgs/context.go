package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/docuvault/docuvault/pkg/rbac"
)

// ContextStore persists each user's pointer to their current
// organization. It implements rbac.ContextResolver for the
// authorization gate.
type ContextStore struct {
	db *sql.DB
}

// NewContextStore creates a context store.
func NewContextStore(db *sql.DB) *ContextStore {
	return &ContextStore{db: db}
}

// SetCurrentOrganization switches the user's current organization.
// The user must be an active member of the target organization;
// switching to an organization the user does not belong to returns
// ErrNotMember.
func (c *ContextStore) SetCurrentOrganization(ctx context.Context, userID string, orgID int64) error {
	var isMember bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM organization_members
			WHERE user_id = $1 AND organization_id = $2 AND is_active = TRUE
		)
	`, userID, orgID).Scan(&isMember)
	if err != nil {
		return fmt.Errorf("failed to verify membership: %w", err)
	}
	if !isMember {
		return ErrNotMember
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO user_organization_context (user_id, current_organization_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET current_organization_id = EXCLUDED.current_organization_id,
		    updated_at = NOW()
	`, userID, orgID)
	if err != nil {
		return fmt.Errorf("failed to set organization context: %w", err)
	}
	return nil
}

// CurrentOrganization returns the user's current organization ID, or
// rbac.ErrNoContext when none is set.
func (c *ContextStore) CurrentOrganization(ctx context.Context, userID string) (int64, error) {
	var orgID int64
	err := c.db.QueryRowContext(ctx, `
		SELECT current_organization_id
		FROM user_organization_context
		WHERE user_id = $1
	`, userID).Scan(&orgID)
	if err == sql.ErrNoRows {
		return 0, rbac.ErrNoContext
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get organization context: %w", err)
	}
	return orgID, nil
}
