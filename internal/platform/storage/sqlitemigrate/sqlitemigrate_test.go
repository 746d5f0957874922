package sqlitemigrate

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func migrationFS(files map[string]string) fstest.MapFS {
	out := fstest.MapFS{}
	for name, content := range files {
		out[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return out
}

func countApplied(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count applied migrations: %v", err)
	}
	return n
}

func hasTable(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var found string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return true
}

func TestApplyMigrationsRunsInOrderOnce(t *testing.T) {
	db := openTestDB(t)
	fsys := migrationFS(map[string]string{
		"0002_data.sql":   "-- +migrate Up\nINSERT INTO items (id) VALUES ('seed');\n-- +migrate Down\nDELETE FROM items;",
		"0001_schema.sql": "-- +migrate Up\nCREATE TABLE items(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE items;",
	})

	if err := ApplyMigrations(db, fsys, ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if !hasTable(t, db, "items") {
		t.Fatal("expected items table")
	}
	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM items").Scan(&rows); err != nil || rows != 1 {
		t.Fatalf("expected seeded row, got %d (%v)", rows, err)
	}
	if got := countApplied(t, db); got != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", got)
	}

	// A second pass is a no-op.
	if err := ApplyMigrations(db, fsys, ""); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM items").Scan(&rows); err != nil || rows != 1 {
		t.Fatalf("expected replay to skip applied files, got %d rows (%v)", rows, err)
	}
}

func TestApplyMigrationsLeavesFailuresUnrecorded(t *testing.T) {
	db := openTestDB(t)
	bad := migrationFS(map[string]string{
		"0001_bad.sql": "-- +migrate Up\nCREAT TABLE things(id INTEGER);",
	})
	if err := ApplyMigrations(db, bad, ""); err == nil {
		t.Fatal("expected broken SQL to fail")
	}
	if got := countApplied(t, db); got != 0 {
		t.Fatalf("expected failed migration to stay unrecorded, got %d", got)
	}

	fixed := migrationFS(map[string]string{
		"0001_bad.sql": "-- +migrate Up\nCREATE TABLE things(id INTEGER PRIMARY KEY);",
	})
	if err := ApplyMigrations(db, fixed, ""); err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}
	if !hasTable(t, db, "things") {
		t.Fatal("expected fixed migration to apply")
	}
}

func TestApplyMigrationsKeysByRoot(t *testing.T) {
	db := openTestDB(t)
	fsys := migrationFS(map[string]string{
		"journal/0001_journal.sql": "-- +migrate Up\nCREATE TABLE journal_rows(id TEXT PRIMARY KEY);",
	})

	if err := ApplyMigrations(db, fsys, "journal"); err != nil {
		t.Fatalf("apply migrations with root: %v", err)
	}
	var key string
	if err := db.QueryRow("SELECT name FROM schema_migrations").Scan(&key); err != nil {
		t.Fatalf("read migration key: %v", err)
	}
	if key != "journal/0001_journal.sql" {
		t.Fatalf("expected root-prefixed key, got %q", key)
	}
}

func TestUpSection(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"both markers", "-- +migrate Up\nCREATE TABLE a(x);\n-- +migrate Down\nDROP TABLE a;", "CREATE TABLE a(x);"},
		{"up only", "-- +migrate Up\nCREATE TABLE b(x);", "CREATE TABLE b(x);"},
		{"no markers", "CREATE TABLE c(x);", "CREATE TABLE c(x);"},
	}
	for _, tc := range cases {
		if got := strings.TrimSpace(UpSection(tc.content)); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
