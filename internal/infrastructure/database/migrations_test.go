package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/calebren/fieldcomm-core/internal/infrastructure/database"
	_ "github.com/calebren/fieldcomm-core/migrations" // registers the embedded schema
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "fieldcomm.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func tableExists(t *testing.T, db *database.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrateAppliesEmbeddedSchema(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	for _, table := range []string{
		"schema_migrations",
		"device_registrations",
		"batch_operations",
		"batch_operation_elements",
	} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing after migration", table)
		}
	}

	// The schema must be usable, not just present.
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO device_registrations (id, hardware_id, site_token, registered_at)
		VALUES ('rec-1', 'sensor-001', 'site-a', CURRENT_TIMESTAMP)`)
	if err != nil {
		t.Errorf("inserting into migrated schema: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var applied int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM schema_migrations").Scan(&applied)
	if err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if applied != 1 {
		t.Errorf("expected 1 recorded migration, got %d", applied)
	}
}
