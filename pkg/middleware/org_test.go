package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/pkg/auth"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/orgs"
	"github.com/docuvault/docuvault/pkg/rbac"
)

func newOrgRouter(t *testing.T) (*mux.Router, sqlmock.Sqlmock, *bool) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	cache := rbac.NewDecisionCache(nil, time.Second, nil)
	service := orgs.NewService(db, rbac.NewStore(db), cache, nil, logger)

	var sawOrg bool
	router := mux.NewRouter()
	router.Use(OrgContextMiddleware(service))
	router.HandleFunc("/organizations/{org_id}/probe", func(w http.ResponseWriter, r *http.Request) {
		org := OrganizationFromContext(r.Context())
		sawOrg = org != nil && org.ID == 42
		w.WriteHeader(http.StatusOK)
	})
	return router, mock, &sawOrg
}

func authedOrgRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	ctx := auth.WithContext(req.Context(), &auth.Context{Identity: auth.Identity{UserID: testUserID}})
	return req.WithContext(ctx)
}

func orgRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "slug", "description", "subscription_tier", "subscription_status",
		"max_users", "max_documents", "max_storage_bytes", "settings", "created_at", "updated_at",
	}).AddRow(int64(42), "Acme", "acme", "", "free", "trial", 5, 100, int64(1<<30), []byte(`{}`), now, now)
}

func TestOrgContextMiddlewareAttachesOrganization(t *testing.T) {
	router, mock, sawOrg := newOrgRouter(t)

	mock.ExpectQuery(`FROM organizations o\s+JOIN organization_members m`).
		WithArgs(int64(42), testUserID).
		WillReturnRows(orgRow())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedOrgRequest("/organizations/42/probe"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *sawOrg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrgContextMiddlewareNonMemberGets404(t *testing.T) {
	router, mock, _ := newOrgRouter(t)

	mock.ExpectQuery(`FROM organizations o\s+JOIN organization_members m`).
		WithArgs(int64(42), testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedOrgRequest("/organizations/42/probe"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrgContextMiddlewareInvalidID(t *testing.T) {
	router, _, _ := newOrgRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedOrgRequest("/organizations/abc/probe"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrgContextMiddlewareRequiresAuth(t *testing.T) {
	router, _, _ := newOrgRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/organizations/42/probe", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
