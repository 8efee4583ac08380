package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Store handles RBAC data persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for seeding and migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// GetRoleByName retrieves a role and its permission names.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `
		SELECT id, name, display_name, description, is_system_role, created_at, updated_at
		FROM roles
		WHERE name = $1
	`

	var role Role
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Description,
		&role.IsSystemRole,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	role.Permissions, err = s.getRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRole retrieves a role by ID.
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `
		SELECT id, name, display_name, description, is_system_role, created_at, updated_at
		FROM roles
		WHERE id = $1
	`

	var role Role
	err := s.db.QueryRowContext(ctx, query, roleID).Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Description,
		&role.IsSystemRole,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role not found: %d", roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	role.Permissions, err = s.getRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// ListRoles lists all roles with their permission names.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	query := `
		SELECT id, name, display_name, description, is_system_role, created_at, updated_at
		FROM roles
		ORDER BY is_system_role DESC, name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		err := rows.Scan(
			&role.ID,
			&role.Name,
			&role.DisplayName,
			&role.Description,
			&role.IsSystemRole,
			&role.CreatedAt,
			&role.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range roles {
		roles[i].Permissions, err = s.getRolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// ListPermissions lists catalog permissions, optionally filtered by
// category. An empty category returns the full catalog.
func (s *Store) ListPermissions(ctx context.Context, category string) ([]Permission, error) {
	query := `
		SELECT id, name, display_name, category, description, created_at
		FROM permissions
	`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY category ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []Permission
	for rows.Next() {
		var perm Permission
		err := rows.Scan(
			&perm.ID,
			&perm.Name,
			&perm.DisplayName,
			&perm.Category,
			&perm.Description,
			&perm.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, perm)
	}
	return permissions, rows.Err()
}

// PermissionExists reports whether a permission name is in the catalog.
func (s *Store) PermissionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM permissions WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check permission %s: %w", name, err)
	}
	return exists, nil
}

// UserHasPermission asks the database-side authorization function for
// a decision. The function is the single source of truth for the
// membership-role-permission rule, so application code and direct
// data-layer access cannot diverge.
func (s *Store) UserHasPermission(ctx context.Context, userID string, orgID int64, permission string) (bool, error) {
	var allowed sql.NullBool
	err := s.db.QueryRowContext(ctx,
		`SELECT user_has_permission($1, $2, $3)`, userID, orgID, permission,
	).Scan(&allowed)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate permission %s: %w", permission, err)
	}
	return allowed.Valid && allowed.Bool, nil
}

// GetUserPermissions returns the permission names for the user's
// active role in the organization. A user with no active membership
// gets an empty list, not an error.
func (s *Store) GetUserPermissions(ctx context.Context, userID string, orgID int64) ([]string, error) {
	query := `
		SELECT p.name
		FROM organization_members m
		JOIN role_permissions rp ON rp.role_id = m.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE m.user_id = $1 AND m.organization_id = $2 AND m.is_active = TRUE
		ORDER BY p.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}
	defer rows.Close()

	permissions := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan permission name: %w", err)
		}
		permissions = append(permissions, name)
	}
	return permissions, rows.Err()
}

// GetMembershipRole resolves the role bound to the user's active
// membership in the organization.
func (s *Store) GetMembershipRole(ctx context.Context, userID string, orgID int64) (*Role, error) {
	query := `
		SELECT r.id, r.name, r.display_name, r.description, r.is_system_role, r.created_at, r.updated_at
		FROM organization_members m
		JOIN roles r ON r.id = m.role_id
		WHERE m.user_id = $1 AND m.organization_id = $2 AND m.is_active = TRUE
	`

	var role Role
	err := s.db.QueryRowContext(ctx, query, userID, orgID).Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Description,
		&role.IsSystemRole,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no active membership for user %s in organization %d", userID, orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership role: %w", err)
	}

	role.Permissions, err = s.getRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// IsSystemAdmin reports whether the user holds a system_admins record.
func (s *Store) IsSystemAdmin(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM system_admins WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check system admin: %w", err)
	}
	return exists, nil
}

// GrantSystemAdmin records a system-wide administrator. Granting an
// existing admin is a no-op.
func (s *Store) GrantSystemAdmin(ctx context.Context, userID, grantedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_admins (user_id, granted_by)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, grantedBy)
	if err != nil {
		return fmt.Errorf("failed to grant system admin: %w", err)
	}
	return nil
}

// RevokeSystemAdmin removes a system-wide administrator record.
func (s *Store) RevokeSystemAdmin(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM system_admins WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke system admin: %w", err)
	}
	return nil
}

func (s *Store) getRolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name ASC
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	permissions := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan permission name: %w", err)
		}
		permissions = append(permissions, name)
	}
	return permissions, rows.Err()
}
