package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/docuvault/docuvault/pkg/observability"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the full schema, ordered. Roles and
// permissions come before organization_members because the member
// role reference is RESTRICT: a role bound to any membership cannot
// be deleted.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					subscription_tier VARCHAR(50) NOT NULL DEFAULT 'free'
						CHECK (subscription_tier IN ('free', 'starter', 'professional', 'enterprise')),
					subscription_status VARCHAR(50) NOT NULL DEFAULT 'trial'
						CHECK (subscription_status IN ('trial', 'active', 'past_due', 'cancelled', 'expired')),
					max_users INT NOT NULL DEFAULT 5 CHECK (max_users >= 0),
					max_documents INT NOT NULL DEFAULT 100 CHECK (max_documents >= 0),
					max_storage_bytes BIGINT NOT NULL DEFAULT 1073741824 CHECK (max_storage_bytes >= 0),
					settings JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_organizations_slug ON organizations(slug);
			`,
		},
		{
			Version:     2,
			Description: "Create roles, permissions and role_permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_system_role BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					category VARCHAR(100) NOT NULL CHECK (category <> ''),
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE INDEX idx_permissions_category ON permissions(category);
			`,
		},
		{
			Version:     3,
			Description: "Create organization_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organization_members (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id UUID NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE RESTRICT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					invited_by UUID,
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					invitation_accepted_at TIMESTAMP
				);

				CREATE UNIQUE INDEX uq_organization_members_active
					ON organization_members(organization_id, user_id)
					WHERE is_active;

				CREATE INDEX idx_organization_members_user_id ON organization_members(user_id);
				CREATE INDEX idx_organization_members_organization_id ON organization_members(organization_id);
			`,
		},
		{
			Version:     4,
			Description: "Create user_organization_context table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_organization_context (
					user_id UUID PRIMARY KEY,
					current_organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     5,
			Description: "Create system_admins table",
			SQL: `
				CREATE TABLE IF NOT EXISTS system_admins (
					user_id UUID PRIMARY KEY,
					granted_by UUID,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     6,
			Description: "Create user_has_permission function",
			SQL: `
				CREATE OR REPLACE FUNCTION user_has_permission(user_uuid UUID, org_id BIGINT, permission_name TEXT)
				RETURNS BOOLEAN AS $$
					SELECT EXISTS (
						SELECT 1
						FROM organization_members m
						JOIN role_permissions rp ON rp.role_id = m.role_id
						JOIN permissions p ON p.id = rp.permission_id
						WHERE m.user_id = user_uuid
						  AND m.organization_id = org_id
						  AND m.is_active = TRUE
						  AND p.name = permission_name
					);
				$$ LANGUAGE sql STABLE;
			`,
		},
	}
}

// RunMigrations executes all pending migrations, each in its own
// transaction, recording applied versions in schema_migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.Infof("Running migration %d: %s", migration.Version, migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		logger.Infof("Migration %d completed", migration.Version)
	}

	return nil
}
