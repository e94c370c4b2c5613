package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"venue-rails/pkg/database"
)

// DBTest wires integration tests to a real MySQL instance. The connection
// comes from DATABASE_URL_TEST, falling back to DATABASE_URL; without either
// the test is skipped so unit runs stay green on machines with no database.
type DBTest struct {
	T   *testing.T
	DB  *database.DB
	SQL *sql.DB
}

func testDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL_TEST"); url != "" {
		return url
	}
	return os.Getenv("DATABASE_URL")
}

// NewDBTest connects, applies the schema and registers teardown on t.
func NewDBTest(t *testing.T) *DBTest {
	t.Helper()

	url := testDatabaseURL()
	if url == "" {
		t.Skip("set DATABASE_URL_TEST or DATABASE_URL to run integration tests")
	}

	db, err := database.New(url)
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("ensure schema: %v", err)
	}

	d := &DBTest{T: t, DB: db, SQL: db.Conn()}
	t.Cleanup(func() { _ = db.Close() })
	return d
}

// PurgeVenue removes one venue and its event log. Rows are keyed by id, so
// parallel tests can each clean up what they seeded without touching the
// rest of the table.
func (d *DBTest) PurgeVenue(id int64) {
	d.T.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := d.SQL.ExecContext(ctx, "DELETE FROM venue_events WHERE venue_id = ?", id); err != nil {
		d.T.Logf("purge venue_events for %d: %v", id, err)
	}
	if _, err := d.SQL.ExecContext(ctx, "DELETE FROM venues WHERE id = ?", id); err != nil {
		d.T.Logf("purge venue %d: %v", id, err)
	}
}
