package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/pkg/auth"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/orgs"
	"github.com/docuvault/docuvault/pkg/rbac"
)

const testUserID = "b9f3a7d2-1c44-4df0-9a6b-2f1a8c3d5e70"

func pqUniqueViolation() *pq.Error {
	return &pq.Error{Code: "23505"}
}

func newTestRouter(t *testing.T) (*mux.Router, sqlmock.Sqlmock) {
	router, mock, _ := newTestRouterWithGate(t)
	return router, mock
}

func newTestRouterWithGate(t *testing.T) (*mux.Router, sqlmock.Sqlmock, *rbac.Gate) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	rbacStore := rbac.NewStore(db)
	cache := rbac.NewDecisionCache(nil, time.Second, nil)
	evaluator := rbac.NewEvaluator(rbacStore, cache, nil, logger)
	catalog, err := rbac.NewCatalog(rbacStore, rbac.DefaultCatalog(), 16)
	require.NoError(t, err)

	contexts := orgs.NewContextStore(db)
	gate := rbac.NewGate(evaluator, rbacStore, catalog, contexts, logger)
	service := orgs.NewService(db, rbacStore, cache, nil, logger)

	router := mux.NewRouter()
	NewOrgHandlers(service, contexts, nil, gate, logger).RegisterRoutes(router)
	return router, mock, gate
}

func authedRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := auth.WithContext(req.Context(), &auth.Context{Identity: auth.Identity{UserID: testUserID}})
	return req.WithContext(ctx)
}

func expectOracle(mock sqlmock.Sqlmock, userID string, orgID int64, permission string, allowed bool) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_has_permission($1, $2, $3)`)).
		WithArgs(userID, orgID, permission).
		WillReturnRows(sqlmock.NewRows([]string{"user_has_permission"}).AddRow(allowed))
}

func expectOwnerRoleLookup(mock sqlmock.Sqlmock, roleID int64, name string) {
	now := time.Now()
	mock.ExpectQuery(`FROM roles\s+WHERE name = \$1`).
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "description", "is_system_role", "created_at", "updated_at"}).
			AddRow(roleID, name, name, "", true, now, now))
	mock.ExpectQuery(`SELECT p.name\s+FROM role_permissions rp`).
		WithArgs(roleID).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(rbac.PermOrgManage))
}

func orgRow(id int64, name, slug string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "slug", "description", "subscription_tier", "subscription_status",
		"max_users", "max_documents", "max_storage_bytes", "settings", "created_at", "updated_at",
	}).AddRow(id, name, slug, "", "free", "trial", 5, 100, int64(1<<30), []byte(`{}`), now, now)
}

func TestCreateOrganizationEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)
	now := time.Now()

	expectOwnerRoleLookup(mock, 1, rbac.RoleOrgOwner)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO organizations`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "max_users", "max_documents", "max_storage_bytes", "created_at", "updated_at"}).
			AddRow(int64(42), 5, 100, int64(1<<30), now, now))
	mock.ExpectExec(`INSERT INTO organization_members`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/organizations", `{"name": "Acme"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	var org orgs.Organization
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&org))
	assert.Equal(t, int64(42), org.ID)
	assert.Equal(t, "acme", org.Slug)
}

func TestCreateOrganizationEndpointRequiresName(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/organizations", `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrganizationEndpointSlugConflict(t *testing.T) {
	router, mock := newTestRouter(t)

	expectOwnerRoleLookup(mock, 1, rbac.RoleOrgOwner)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO organizations`).
		WillReturnError(pqUniqueViolation())
	mock.ExpectRollback()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/organizations", `{"name": "Acme"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetOrganizationEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	// OrgContextMiddleware performs the membership-filtered lookup and
	// the handler serves the attached organization.
	mock.ExpectQuery(`FROM organizations o\s+JOIN organization_members m`).
		WithArgs(int64(42), testUserID).
		WillReturnRows(orgRow(42, "Acme", "acme"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/organizations/42", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slug":"acme"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrganizationEndpointNonMember(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery(`FROM organizations o\s+JOIN organization_members m`).
		WithArgs(int64(42), testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/organizations/42", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOrganizationEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	expectOracle(mock, testUserID, 42, rbac.PermOrgManage, true)
	mock.ExpectExec(`UPDATE organizations SET description`).
		WithArgs("new text", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM organizations WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(orgRow(42, "Acme", "acme"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, "/organizations/42", `{"description": "new text"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrganizationEndpointDenied(t *testing.T) {
	router, mock := newTestRouter(t)

	expectOracle(mock, testUserID, 42, rbac.PermOrgManage, false)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, "/organizations/42", `{"description": "new text"}`))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing required permission(s): org.manage")
}

func TestSetCurrentOrganizationEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(testUserID, int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`INSERT INTO user_organization_context`).
		WithArgs(testUserID, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/organizations/42/set-current", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"current_organization_id":42`)
}

func TestSetCurrentOrganizationEndpointNonMember(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(testUserID, int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/organizations/42/set-current", ""))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCurrentOrganizationEndpointNoContext(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery(`SELECT current_organization_id`).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"current_organization_id"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/organizations/current/details", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No organization context available")
}

func TestCurrentOrganizationEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery(`SELECT current_organization_id`).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"current_organization_id"}).AddRow(int64(42)))
	mock.ExpectQuery(`FROM organizations o\s+JOIN organization_members m`).
		WithArgs(int64(42), testUserID).
		WillReturnRows(orgRow(42, "Acme", "acme"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/organizations/current/details", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slug":"acme"`)
}

func TestAddMemberEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)
	now := time.Now()
	invitee := "0d1e2f3a-4b5c-6d7e-8f90-a1b2c3d4e5f6"

	expectOracle(mock, testUserID, 42, rbac.PermUserInvite, true)
	expectOwnerRoleLookup(mock, 4, rbac.RoleViewer)
	mock.ExpectQuery(`INSERT INTO organization_members`).
		WithArgs(int64(42), invitee, int64(4), testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "joined_at"}).AddRow(int64(9), now))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/organizations/42/members",
		`{"user_id": "`+invitee+`", "role_name": "viewer"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	var member orgs.Member
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&member))
	assert.Equal(t, int64(9), member.ID)
	assert.Equal(t, rbac.RoleViewer, member.RoleName)
}

func TestAddMemberEndpointConflict(t *testing.T) {
	router, mock := newTestRouter(t)
	invitee := "0d1e2f3a-4b5c-6d7e-8f90-a1b2c3d4e5f6"

	expectOracle(mock, testUserID, 42, rbac.PermUserInvite, true)
	expectOwnerRoleLookup(mock, 4, rbac.RoleViewer)
	mock.ExpectQuery(`INSERT INTO organization_members`).
		WillReturnError(pqUniqueViolation())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/organizations/42/members",
		`{"user_id": "`+invitee+`"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAddMemberEndpointDenied(t *testing.T) {
	router, mock := newTestRouter(t)

	expectOracle(mock, testUserID, 42, rbac.PermUserInvite, false)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/organizations/42/members",
		`{"user_id": "0d1e2f3a-4b5c-6d7e-8f90-a1b2c3d4e5f6"}`))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListMembersEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)
	now := time.Now()

	expectOracle(mock, testUserID, 42, rbac.PermDocumentView, true)
	mock.ExpectQuery(`FROM organization_members m\s+JOIN roles r`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "user_id", "role_id", "is_active",
			"invited_by", "joined_at", "invitation_accepted_at", "name", "display_name",
		}).AddRow(int64(1), int64(42), testUserID, int64(1), true, nil, now, now, rbac.RoleOrgOwner, "Organization Owner"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/organizations/42/members", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"members"`)
	assert.Contains(t, rec.Body.String(), rbac.RoleOrgOwner)
}

func TestRemoveMemberEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)
	now := time.Now()

	expectOracle(mock, testUserID, 42, rbac.PermUserRemove, true)
	mock.ExpectQuery(`FROM organization_members m\s+JOIN roles r`).
		WithArgs(int64(9), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "user_id", "role_id", "is_active",
			"invited_by", "joined_at", "invitation_accepted_at", "name", "display_name",
		}).AddRow(int64(9), int64(42), "0d1e2f3a-4b5c-6d7e-8f90-a1b2c3d4e5f6", int64(4), true, nil, now, now, rbac.RoleViewer, "Viewer"))
	mock.ExpectExec(`UPDATE organization_members\s+SET is_active = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM user_organization_context`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/organizations/42/members/9", ""))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/organizations", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Walks the full membership flow: create an organization, invite a
// second user as document_manager, then exercise a document.edit gate
// as that user.
func TestDocumentManagerCanEditAfterInvite(t *testing.T) {
	router, mock, gate := newTestRouterWithGate(t)
	now := time.Now()
	invitee := "0d1e2f3a-4b5c-6d7e-8f90-a1b2c3d4e5f6"

	// The catalog is what makes the final request succeed:
	// document_manager carries document.edit.
	var managerPerms []string
	for _, role := range rbac.DefaultCatalog().Roles {
		if role.Name == rbac.RoleDocumentManager {
			managerPerms = role.Permissions
		}
	}
	require.Contains(t, managerPerms, rbac.PermDocumentEdit)

	edited := false
	router.Handle("/organizations/{org_id:[0-9]+}/documents/{document_id:[0-9]+}",
		gate.RequirePermissions(rbac.PermDocumentEdit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			edited = true
			w.WriteHeader(http.StatusOK)
		}))).Methods("PUT")

	expectOwnerRoleLookup(mock, 1, rbac.RoleOrgOwner)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO organizations`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "max_users", "max_documents", "max_storage_bytes", "created_at", "updated_at"}).
			AddRow(int64(42), 5, 100, int64(1<<30), now, now))
	mock.ExpectExec(`INSERT INTO organization_members`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/organizations", `{"name": "Acme"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slug":"acme"`)

	expectOracle(mock, testUserID, 42, rbac.PermUserInvite, true)
	expectOwnerRoleLookup(mock, 3, rbac.RoleDocumentManager)
	mock.ExpectQuery(`INSERT INTO organization_members`).
		WithArgs(int64(42), invitee, int64(3), testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "joined_at"}).AddRow(int64(9), now))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/organizations/42/members",
		`{"user_id": "`+invitee+`", "role_name": "document_manager"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	expectOracle(mock, invitee, 42, rbac.PermDocumentEdit, true)

	req := httptest.NewRequest(http.MethodPut, "/organizations/42/documents/7", nil)
	req = req.WithContext(auth.WithContext(req.Context(), &auth.Context{Identity: auth.Identity{UserID: invitee}}))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, edited)
	assert.NoError(t, mock.ExpectationsWereMet())
}
