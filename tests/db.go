package testutil

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/storage/database"
)

// PrepareDB returns a migrated, empty test database.
// The test is skipped unless DROWSY_TEST_DATABASE points to a PostgreSQL server.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := core.NewTestConfig()
	if conf.Database.Host == "" {
		t.Skip("DROWSY_TEST_DATABASE not set")
	}

	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		t.Fatalf("CreateIfNotExist() failed: %v", err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err = database.Migrate(ctx, db.DB); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if _, err = db.ExecContext(ctx, `TRUNCATE drowsiness_level, drowsiness_analysis, drowsiness_session`); err != nil {
		t.Fatalf("truncating tables failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
