package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

// CatalogData is the seedable reference data: the permission list and
// the role-to-permission mapping. A deployment may extend the built-in
// data with a YAML overlay file.
type CatalogData struct {
	Permissions []CatalogPermission `yaml:"permissions"`
	Roles       []CatalogRole       `yaml:"roles"`
}

// CatalogPermission describes one permission entry in the catalog.
type CatalogPermission struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
}

// CatalogRole describes one role entry in the catalog.
type CatalogRole struct {
	Name         string   `yaml:"name"`
	DisplayName  string   `yaml:"display_name"`
	Description  string   `yaml:"description"`
	IsSystemRole bool     `yaml:"is_system_role"`
	Permissions  []string `yaml:"permissions"`
}

// DefaultCatalog returns the built-in permissions and roles.
func DefaultCatalog() *CatalogData {
	return &CatalogData{
		Permissions: []CatalogPermission{
			{Name: PermDocumentView, DisplayName: "View Documents", Category: CategoryDocument, Description: "View documents in the organization"},
			{Name: PermDocumentCreate, DisplayName: "Create Documents", Category: CategoryDocument, Description: "Create new documents"},
			{Name: PermDocumentEdit, DisplayName: "Edit Documents", Category: CategoryDocument, Description: "Edit existing documents"},
			{Name: PermDocumentDelete, DisplayName: "Delete Documents", Category: CategoryDocument, Description: "Delete documents"},
			{Name: PermDocumentManageAll, DisplayName: "Manage All Documents", Category: CategoryDocument, Description: "Full control over every document in the organization"},
			{Name: PermUserInvite, DisplayName: "Invite Users", Category: CategoryUser, Description: "Invite users to the organization"},
			{Name: PermUserRemove, DisplayName: "Remove Users", Category: CategoryUser, Description: "Remove users from the organization"},
			{Name: PermRoleAssign, DisplayName: "Assign Roles", Category: CategoryRole, Description: "Change the role of organization members"},
			{Name: PermOrgManage, DisplayName: "Manage Organization", Category: CategoryOrganization, Description: "Update organization name, description and settings"},
			{Name: PermBillingManage, DisplayName: "Manage Billing", Category: CategoryBilling, Description: "Manage subscription and billing details"},
		},
		Roles: []CatalogRole{
			{
				Name:         RoleOrgOwner,
				DisplayName:  "Organization Owner",
				Description:  "Full access to the organization, including billing",
				IsSystemRole: true,
				Permissions: []string{
					PermDocumentView, PermDocumentCreate, PermDocumentEdit,
					PermDocumentDelete, PermDocumentManageAll,
					PermUserInvite, PermUserRemove, PermRoleAssign,
					PermOrgManage, PermBillingManage,
				},
			},
			{
				Name:         RoleOrgAdmin,
				DisplayName:  "Organization Admin",
				Description:  "Manages members, roles and documents",
				IsSystemRole: true,
				Permissions: []string{
					PermDocumentView, PermDocumentCreate, PermDocumentEdit,
					PermDocumentDelete, PermDocumentManageAll,
					PermUserInvite, PermUserRemove, PermRoleAssign,
					PermOrgManage,
				},
			},
			{
				Name:         RoleDocumentManager,
				DisplayName:  "Document Manager",
				Description:  "Full control over documents, no member management",
				IsSystemRole: true,
				Permissions: []string{
					PermDocumentView, PermDocumentCreate, PermDocumentEdit,
					PermDocumentDelete, PermDocumentManageAll,
				},
			},
			{
				Name:         RoleViewer,
				DisplayName:  "Viewer",
				Description:  "Read-only access to documents",
				IsSystemRole: true,
				Permissions:  []string{PermDocumentView},
			},
		},
	}
}

// LoadCatalog returns the built-in catalog merged with an optional
// YAML overlay file. Overlay entries with a name already present in
// the built-in data replace that entry.
func LoadCatalog(path string) (*CatalogData, error) {
	data := DefaultCatalog()
	if path == "" {
		return data, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var overlay CatalogData
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	data.merge(&overlay)
	if err := data.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog file %s: %w", path, err)
	}
	return data, nil
}

func (d *CatalogData) merge(overlay *CatalogData) {
	for _, p := range overlay.Permissions {
		replaced := false
		for i := range d.Permissions {
			if d.Permissions[i].Name == p.Name {
				d.Permissions[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			d.Permissions = append(d.Permissions, p)
		}
	}
	for _, r := range overlay.Roles {
		replaced := false
		for i := range d.Roles {
			if d.Roles[i].Name == r.Name {
				d.Roles[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			d.Roles = append(d.Roles, r)
		}
	}
}

func (d *CatalogData) validate() error {
	known := make(map[string]bool, len(d.Permissions))
	for _, p := range d.Permissions {
		if p.Name == "" || p.Category == "" {
			return fmt.Errorf("permission %q must have a name and a category", p.Name)
		}
		if known[p.Name] {
			return fmt.Errorf("duplicate permission name %q", p.Name)
		}
		known[p.Name] = true
	}
	for _, r := range d.Roles {
		if r.Name == "" {
			return fmt.Errorf("role with empty name")
		}
		for _, p := range r.Permissions {
			if !known[p] {
				return fmt.Errorf("role %q references unknown permission %q", r.Name, p)
			}
		}
	}
	return nil
}

// PermissionNames returns all permission names in the catalog data.
func (d *CatalogData) PermissionNames() []string {
	names := make([]string, 0, len(d.Permissions))
	for _, p := range d.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// Catalog answers "is this a known permission name" for gate
// configuration and request-time validation. Names from the loaded
// catalog data resolve without touching the database; other names are
// looked up in the permissions table once and remembered in a small
// LRU, so custom permissions added at runtime still validate.
type Catalog struct {
	store  *Store
	static map[string]bool
	lookup *lru.Cache[string, bool]
}

// NewCatalog creates a catalog validator over the given store and
// loaded catalog data. cacheSize bounds the LRU for database-backed
// lookups.
func NewCatalog(store *Store, data *CatalogData, cacheSize int) (*Catalog, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	lookup, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog cache: %w", err)
	}

	static := make(map[string]bool, len(data.Permissions))
	for _, p := range data.Permissions {
		static[p.Name] = true
	}

	return &Catalog{
		store:  store,
		static: static,
		lookup: lookup,
	}, nil
}

// Known reports whether name is a catalog permission.
func (c *Catalog) Known(ctx context.Context, name string) bool {
	if c.static[name] {
		return true
	}
	if known, ok := c.lookup.Get(name); ok {
		return known
	}

	known, err := c.store.PermissionExists(ctx, name)
	if err != nil {
		// Unknown on store failure; do not poison the cache.
		return false
	}
	c.lookup.Add(name, known)
	return known
}

// MustKnow panics if any name is not in the loaded catalog data. It
// is called during route configuration, where an unknown permission
// name is an operational misconfiguration that must be loud rather
// than a silent always-deny.
func (c *Catalog) MustKnow(names ...string) {
	for _, name := range names {
		if !c.static[name] {
			panic(fmt.Sprintf("rbac: unknown permission name %q used in gate configuration", name))
		}
	}
}

// SeedCatalog writes the catalog data into the permissions, roles and
// role_permissions tables. Seeding is idempotent: existing rows are
// updated in place, missing rows are inserted, and role permission
// sets are replaced to match the catalog.
func SeedCatalog(ctx context.Context, db *sql.DB, data *CatalogData) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start catalog seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range data.Permissions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO permissions (name, display_name, category, description)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO UPDATE
			SET display_name = EXCLUDED.display_name,
			    category = EXCLUDED.category,
			    description = EXCLUDED.description
		`, p.Name, p.DisplayName, p.Category, p.Description)
		if err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", p.Name, err)
		}
	}

	for _, r := range data.Roles {
		var roleID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO roles (name, display_name, description, is_system_role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO UPDATE
			SET display_name = EXCLUDED.display_name,
			    description = EXCLUDED.description,
			    is_system_role = EXCLUDED.is_system_role,
			    updated_at = NOW()
			RETURNING id
		`, r.Name, r.DisplayName, r.Description, r.IsSystemRole).Scan(&roleID)
		if err != nil {
			return fmt.Errorf("failed to seed role %s: %w", r.Name, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM role_permissions WHERE role_id = $1`, roleID,
		); err != nil {
			return fmt.Errorf("failed to reset permissions for role %s: %w", r.Name, err)
		}

		for _, perm := range r.Permissions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				SELECT $1, id FROM permissions WHERE name = $2
			`, roleID, perm)
			if err != nil {
				return fmt.Errorf("failed to bind permission %s to role %s: %w", perm, r.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog seed: %w", err)
	}
	return nil
}
