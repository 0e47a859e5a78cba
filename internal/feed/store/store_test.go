package store

import (
	"context"
	"testing"

	"skiff/internal/core"
	"skiff/internal/feed/migrations"
)

func openTestDB(t *testing.T) *core.Database {
	t.Helper()

	logger := core.NewTestLogger()
	db, err := core.OpenDatabase(":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := core.NewMigrationService(db, logger).Migrate(context.Background(), migrations.All()); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return db
}
