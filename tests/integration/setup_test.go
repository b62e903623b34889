package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/siteforge-labs/siteforge-backend/internal/storage/postgres"
)

// testDSN resolves the test database connection string. Tests skip when
// nothing is configured. TEST_DB_DSN wins; otherwise the string is
// assembled from TEST_DB_* and finally DB_* variables.
func testDSN(t *testing.T) string {
	t.Helper()

	if dsn := os.Getenv("TEST_DB_DSN"); dsn != "" {
		return dsn
	}

	for _, prefix := range []string{"TEST_DB", "DB"} {
		host := os.Getenv(prefix + "_HOST")
		port := os.Getenv(prefix + "_PORT")
		user := os.Getenv(prefix + "_USER")
		password := os.Getenv(prefix + "_PASSWORD")
		dbname := os.Getenv(prefix + "_NAME")

		if host != "" && port != "" && user != "" && dbname != "" {
			return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
				host, port, user, password, dbname)
		}
	}

	t.Skip("TEST_DB_DSN or DB_* environment variables not set, skipping PostgreSQL integration test")
	return ""
}

// setupTestDB opens both handles the tests need: the pgx pool the repos
// run on, and a plain database/sql handle for seeding and inspection.
// The schema is applied on the way in.
func setupTestDB(t *testing.T) (*pgxpool.Pool, *sql.DB) {
	t.Helper()

	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, postgres.EnsureSchema(ctx, pool))

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Ping())

	return pool, db
}

// seedUser inserts a throwaway user and schedules its removal, which
// cascades to every project, build and message the test creates.
func seedUser(t *testing.T, db *sql.DB) string {
	t.Helper()

	var id string
	err := db.QueryRow(`
		INSERT INTO users (firebase_uid, email)
		VALUES ($1, $2)
		RETURNING id::text
	`, "it-"+uuid.NewString(), "it@example.com").Scan(&id)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM users WHERE id = $1::uuid`, id)
	})
	return id
}

// seedProject inserts a project for userID and returns its internal and
// public IDs.
func seedProject(t *testing.T, db *sql.DB, userID string) (string, string) {
	t.Helper()

	publicID := fmt.Sprintf("site-%s", uuid.NewString()[:13])
	var id string
	err := db.QueryRow(`
		INSERT INTO projects (public_id, user_id, name)
		VALUES ($1, $2::uuid, $3)
		RETURNING id::text
	`, publicID, userID, "integration test site").Scan(&id)
	require.NoError(t, err)

	return id, publicID
}

func projectStatus(t *testing.T, db *sql.DB, projectID string) string {
	t.Helper()

	var status string
	err := db.QueryRow(`SELECT build_status FROM projects WHERE id = $1::uuid`, projectID).Scan(&status)
	require.NoError(t, err)
	return status
}
