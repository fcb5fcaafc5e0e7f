package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	return conn
}

var migratedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMigrate_Fresh(t *testing.T) {
	conn := openTestDB(t)
	applied, err := migrate(context.Background(), conn, migratedAt)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if diff := cmp.Diff([]string{"001_initial", "002_job_write_tags"}, applied); diff != "" {
		t.Errorf("applied versions (-want +got):\n%s", diff)
	}

	for _, table := range []string{"jobs", "renames", "schema_migrations"} {
		var count int
		conn.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&count)
		if count != 1 {
			t.Errorf("expected table %q to exist after migration", table)
		}
	}

	var at string
	if err := conn.QueryRow(
		`SELECT applied_at FROM schema_migrations WHERE version = '001_initial'`,
	).Scan(&at); err != nil {
		t.Fatalf("read applied_at: %v", err)
	}
	if at != formatTime(migratedAt) {
		t.Errorf("applied_at = %q, want %q", at, formatTime(migratedAt))
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	if _, err := migrate(ctx, conn, migratedAt); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	applied, err := migrate(ctx, conn, migratedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("second run applied %v, want nothing", applied)
	}
	done, err := appliedVersions(ctx, conn)
	if err != nil {
		t.Fatalf("appliedVersions: %v", err)
	}
	if len(done) != 2 {
		t.Errorf("expected 2 recorded versions, got %v", done)
	}
}

func TestMigrate_ResumesAfterRecordedVersion(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	all, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	// A database that stopped after the first script.
	if _, err := conn.Exec(`CREATE TABLE schema_migrations (version TEXT PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		t.Fatal(err)
	}
	if err := applyMigration(ctx, conn, all[0], migratedAt); err != nil {
		t.Fatalf("apply first: %v", err)
	}

	applied, err := migrate(ctx, conn, migratedAt)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if diff := cmp.Diff([]string{"002_job_write_tags"}, applied); diff != "" {
		t.Errorf("applied versions (-want +got):\n%s", diff)
	}
	var count int
	if err := conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('jobs') WHERE name = 'write_tags'`,
	).Scan(&count); err != nil {
		t.Fatalf("table_info: %v", err)
	}
	if count != 1 {
		t.Error("expected jobs.write_tags column after migrations")
	}
}

func TestApplyMigrationRollsBackOnError(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	if _, err := migrate(ctx, conn, migratedAt); err != nil {
		t.Fatal(err)
	}
	bad := migration{version: "999_broken", script: `CREATE TABLE extra (id INTEGER); SELECT * FROM no_such_table;`}
	if err := applyMigration(ctx, conn, bad, migratedAt); err == nil {
		t.Fatal("expected error from broken migration")
	}
	done, err := appliedVersions(ctx, conn)
	if err != nil {
		t.Fatal(err)
	}
	if done["999_broken"] {
		t.Error("failed migration must not be recorded")
	}
	var count int
	conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'extra'`).Scan(&count)
	if count != 0 {
		t.Error("failed migration must leave no tables behind")
	}
}
