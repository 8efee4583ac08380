package rbac

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// RequireDatabase opens the integration test database named by the
// TEST_POSTGRES_PRIMARY environment variable, skipping the test when it
// is unset or unreachable. Callers own closing the returned handle.
func RequireDatabase(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_POSTGRES_PRIMARY")
	if dbURL == "" {
		t.Skip("TEST_POSTGRES_PRIMARY not set, skipping database test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("database not reachable: %v", err)
	}
	return db
}
