package rbac

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "b9f3a7d2-1c44-4df0-9a6b-2f1a8c3d5e70"

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db), mock
}

func roleColumns() []string {
	return []string{"id", "name", "display_name", "description", "is_system_role", "created_at", "updated_at"}
}

func TestStoreUserHasPermission(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_has_permission($1, $2, $3)`)).
		WithArgs(testUserID, int64(42), PermDocumentEdit).
		WillReturnRows(sqlmock.NewRows([]string{"user_has_permission"}).AddRow(true))

	allowed, err := store.UserHasPermission(context.Background(), testUserID, 42, PermDocumentEdit)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUserHasPermissionNullIsDeny(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_has_permission($1, $2, $3)`)).
		WithArgs(testUserID, int64(42), PermDocumentEdit).
		WillReturnRows(sqlmock.NewRows([]string{"user_has_permission"}).AddRow(nil))

	allowed, err := store.UserHasPermission(context.Background(), testUserID, 42, PermDocumentEdit)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestStoreGetRoleByName(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, name, display_name, description, is_system_role, created_at, updated_at\s+FROM roles\s+WHERE name = \$1`).
		WithArgs(RoleViewer).
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow(int64(4), RoleViewer, "Viewer", "Read-only access to documents", true, now, now))

	mock.ExpectQuery(`SELECT p.name\s+FROM role_permissions rp`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(PermDocumentView))

	role, err := store.GetRoleByName(context.Background(), RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, int64(4), role.ID)
	assert.True(t, role.IsSystemRole)
	assert.Equal(t, []string{PermDocumentView}, role.Permissions)
}

func TestStoreGetRoleByNameNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM roles`).
		WithArgs("nonexistent").
		WillReturnRows(sqlmock.NewRows(roleColumns()))

	_, err := store.GetRoleByName(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role not found")
}

func TestStoreGetUserPermissionsEmptyWithoutMembership(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM organization_members m`).
		WithArgs(testUserID, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	permissions, err := store.GetUserPermissions(context.Background(), testUserID, 7)
	require.NoError(t, err)
	assert.NotNil(t, permissions)
	assert.Empty(t, permissions)
}

func TestStoreGetMembershipRole(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM organization_members m\s+JOIN roles r`).
		WithArgs(testUserID, int64(7)).
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow(int64(2), RoleOrgAdmin, "Organization Admin", "", true, now, now))

	mock.ExpectQuery(`SELECT p.name\s+FROM role_permissions rp`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow(PermDocumentView).AddRow(PermOrgManage))

	role, err := store.GetMembershipRole(context.Background(), testUserID, 7)
	require.NoError(t, err)
	assert.Equal(t, RoleOrgAdmin, role.Name)
	assert.Len(t, role.Permissions, 2)
}

func TestStoreGetMembershipRoleNoMembership(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM organization_members m\s+JOIN roles r`).
		WithArgs(testUserID, int64(7)).
		WillReturnRows(sqlmock.NewRows(roleColumns()))

	_, err := store.GetMembershipRole(context.Background(), testUserID, 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active membership")
}

func TestStoreListPermissionsByCategory(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM permissions\s+WHERE category = \$1`).
		WithArgs(CategoryBilling).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "category", "description", "created_at"}).
			AddRow(int64(10), PermBillingManage, "Manage Billing", CategoryBilling, "", now))

	permissions, err := store.ListPermissions(context.Background(), CategoryBilling)
	require.NoError(t, err)
	require.Len(t, permissions, 1)
	assert.Equal(t, PermBillingManage, permissions[0].Name)
}

func TestStoreSystemAdmin(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM system_admins`).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	isAdmin, err := store.IsSystemAdmin(context.Background(), testUserID)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	mock.ExpectExec(`INSERT INTO system_admins`).
		WithArgs(testUserID, testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.GrantSystemAdmin(context.Background(), testUserID, testUserID))

	mock.ExpectExec(`DELETE FROM system_admins`).
		WithArgs(testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.RevokeSystemAdmin(context.Background(), testUserID))

	assert.NoError(t, mock.ExpectationsWereMet())
}
