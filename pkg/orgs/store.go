package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Store handles organization persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new organization store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const orgColumns = `id, name, slug, description, subscription_tier, subscription_status, max_users, max_documents, max_storage_bytes, settings, created_at, updated_at`

const orgColumnsJoined = `o.id, o.name, o.slug, o.description, o.subscription_tier, o.subscription_status, o.max_users, o.max_documents, o.max_storage_bytes, o.settings, o.created_at, o.updated_at`

// CreateOrganizationTx inserts the organization row inside the given
// transaction and fills in generated fields.
func (s *Store) CreateOrganizationTx(ctx context.Context, tx *sql.Tx, org *Organization) error {
	if org.Slug == "" {
		org.Slug = GenerateSlug(org.Name)
	}
	if org.SubscriptionTier == "" {
		org.SubscriptionTier = TierFree
	}
	if org.SubscriptionStatus == "" {
		org.SubscriptionStatus = StatusTrial
	}
	if org.Settings == nil {
		org.Settings = map[string]any{}
	}

	settingsJSON, err := json.Marshal(org.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO organizations (name, slug, description, subscription_tier, subscription_status, settings)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, max_users, max_documents, max_storage_bytes, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		org.Name, org.Slug, org.Description, org.SubscriptionTier, org.SubscriptionStatus, settingsJSON,
	).Scan(&org.ID, &org.MaxUsers, &org.MaxDocuments, &org.MaxStorageBytes, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// GetOrganization retrieves an organization by ID.
func (s *Store) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return s.scanOrganizationRow(s.db.QueryRowContext(ctx, query, id))
}

// GetOrganizationBySlug retrieves an organization by slug.
func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE slug = $1`
	return s.scanOrganizationRow(s.db.QueryRowContext(ctx, query, slug))
}

// GetOrganizationForUser retrieves an organization only if the user
// has an active membership in it. Non-members see ErrNotFound, the
// same as an absent row.
func (s *Store) GetOrganizationForUser(ctx context.Context, id int64, userID string) (*Organization, error) {
	query := `
		SELECT ` + orgColumnsJoined + `
		FROM organizations o
		JOIN organization_members m ON m.organization_id = o.id
		WHERE o.id = $1 AND m.user_id = $2 AND m.is_active = TRUE
	`
	return s.scanOrganizationRow(s.db.QueryRowContext(ctx, query, id, userID))
}

// ListOrganizationsForUser lists the organizations the user actively
// belongs to, newest first.
func (s *Store) ListOrganizationsForUser(ctx context.Context, userID string) ([]*Organization, error) {
	query := `
		SELECT ` + orgColumnsJoined + `
		FROM organizations o
		JOIN organization_members m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.is_active = TRUE
		ORDER BY o.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var organizations []*Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		organizations = append(organizations, org)
	}
	return organizations, rows.Err()
}

// UpdateOrganization applies a partial update: only non-nil fields
// are written.
func (s *Store) UpdateOrganization(ctx context.Context, id int64, updates *UpdateOrgRequest) error {
	clauses, args := buildUpdateClauses(updates)
	return s.applyUpdate(ctx, id, clauses, args)
}

// AdminUpdateOrganization applies a partial update including
// subscription and quota fields.
func (s *Store) AdminUpdateOrganization(ctx context.Context, id int64, updates *AdminUpdateOrgRequest) error {
	clauses, args := buildUpdateClauses(&updates.UpdateOrgRequest)

	if updates.Slug != nil {
		clauses = append(clauses, "slug")
		args = append(args, *updates.Slug)
	}
	if updates.SubscriptionTier != nil {
		clauses = append(clauses, "subscription_tier")
		args = append(args, string(*updates.SubscriptionTier))
	}
	if updates.SubscriptionStatus != nil {
		clauses = append(clauses, "subscription_status")
		args = append(args, string(*updates.SubscriptionStatus))
	}
	if updates.MaxUsers != nil {
		clauses = append(clauses, "max_users")
		args = append(args, *updates.MaxUsers)
	}
	if updates.MaxDocuments != nil {
		clauses = append(clauses, "max_documents")
		args = append(args, *updates.MaxDocuments)
	}
	if updates.MaxStorageBytes != nil {
		clauses = append(clauses, "max_storage_bytes")
		args = append(args, *updates.MaxStorageBytes)
	}

	return s.applyUpdate(ctx, id, clauses, args)
}

func buildUpdateClauses(updates *UpdateOrgRequest) ([]string, []interface{}) {
	var clauses []string
	var args []interface{}

	if updates.Name != nil {
		clauses = append(clauses, "name")
		args = append(args, *updates.Name)
	}
	if updates.Description != nil {
		clauses = append(clauses, "description")
		args = append(args, *updates.Description)
	}
	if updates.Settings != nil {
		settingsJSON, err := json.Marshal(updates.Settings)
		if err == nil {
			clauses = append(clauses, "settings")
			args = append(args, settingsJSON)
		}
	}
	return clauses, args
}

func (s *Store) applyUpdate(ctx context.Context, id int64, clauses []string, args []interface{}) error {
	if len(clauses) == 0 {
		return nil
	}

	setClauses := make([]string, len(clauses))
	for i, col := range clauses {
		setClauses[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	setClauses = append(setClauses, "updated_at = NOW()")

	args = append(args, id)
	query := fmt.Sprintf("UPDATE organizations SET %s WHERE id = $%d",
		strings.Join(setClauses, ", "), len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to update organization: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanOrganizationRow(row *sql.Row) (*Organization, error) {
	org, err := scanOrganization(row)
	if err != nil {
		return nil, err
	}
	return org, nil
}

func scanOrganization(scanner rowScanner) (*Organization, error) {
	org := &Organization{}
	var settingsJSON []byte

	err := scanner.Scan(
		&org.ID, &org.Name, &org.Slug, &org.Description,
		&org.SubscriptionTier, &org.SubscriptionStatus,
		&org.MaxUsers, &org.MaxDocuments, &org.MaxStorageBytes,
		&settingsJSON, &org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan organization: %w", err)
	}

	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &org.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return org, nil
}

// ValidSlug reports whether s is a well-formed slug: non-empty,
// lowercase alphanumerics separated by single hyphens. A valid slug
// is exactly its own GenerateSlug image.
func ValidSlug(s string) bool {
	return s != "" && s == GenerateSlug(s)
}

// GenerateSlug derives a URL-safe slug from a name.
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return slug
}
