package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, dialect := range []Dialect{SQLite, Postgres} {
		migrations, err := EmbeddedMigrations(dialect)
		if err != nil {
			t.Fatalf("Failed to read %s migrations: %v", dialect, err)
		}
		if len(migrations) == 0 || migrations[0].Version != 1 || migrations[0].Name != "initial" {
			t.Errorf("Unexpected %s migrations: %+v", dialect, migrations)
		}
	}
}

func TestInitializeDatabase(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := InitializeDatabase(ctx, db, SQLite); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	for _, table := range []string{"collections", "items", "sync_meta", "items_fts"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s missing: %v", table, err)
		}
	}

	// Running again is a no-op.
	n, err := NewMigrationManager(db, SQLite).ApplyPendingMigrations(ctx)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no pending migrations, applied %d", n)
	}
}

func TestMigrationStatusFromPath(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()

	files := map[string]string{
		"001_first.sql":  "CREATE TABLE first (id INTEGER);",
		"002_second.sql": "CREATE TABLE second (id INTEGER);",
		"notes.txt":      "ignored",
		"bad_name.sql":   "SELECT 1;",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	m := NewMigrationManagerFromPath(db, SQLite, dir)
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	available, err := m.AvailableMigrations()
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	if len(available) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(available))
	}

	if err := m.ApplyMigration(ctx, available[0]); err != nil {
		t.Fatalf("Failed to apply first migration: %v", err)
	}

	status, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	if len(status.Applied) != 1 || len(status.Pending) != 1 || status.Pending[0].Name != "second" {
		t.Errorf("Unexpected status %+v", status)
	}
	if status.Applied[0].AppliedAt == nil {
		t.Error("Applied migration should carry a timestamp")
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "001_broken.sql"), []byte("CREATE TABLE ok (id INTEGER); NOT SQL;"), 0644); err != nil {
		t.Fatalf("Failed to write migration: %v", err)
	}

	m := NewMigrationManagerFromPath(db, SQLite, dir)
	if _, err := m.ApplyPendingMigrations(ctx); err == nil {
		t.Fatal("Expected broken migration to fail")
	}

	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("Failed to read applied migrations: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("Broken migration should not be recorded, got %v", applied)
	}
}
