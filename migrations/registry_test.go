package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	hooks "github.com/goliatone/go-changelog-hooks"
	_ "github.com/mattn/go-sqlite3"
)

func TestLedgerFS_ServesBothDialects(t *testing.T) {
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		fsys, err := LedgerFS(dialect)
		if err != nil {
			t.Fatalf("ledger fs %s: %v", dialect, err)
		}
		content, err := fs.ReadFile(fsys, "00001_changelog_kv_entries.up.sql")
		if err != nil {
			t.Fatalf("read %s up migration: %v", dialect, err)
		}
		if !strings.Contains(string(content), LedgerTable) {
			t.Fatalf("expected %s migration to create %s", dialect, LedgerTable)
		}
	}
	if _, err := LedgerFS("mysql"); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
}

func TestLedgerFS_RejectsTreeWithoutUpMigrations(t *testing.T) {
	empty := fstest.MapFS{
		"data/sql/migrations/README.md":        {Data: []byte("none")},
		"data/sql/migrations/sqlite/README.md": {Data: []byte("none")},
	}
	if _, err := LedgerFS(DialectSQLite, empty); err == nil {
		t.Fatalf("expected error for tree without *.up.sql files")
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"sqlite3":    DialectSQLite,
		" Postgres ": DialectPostgres,
	}
	for driver, expected := range cases {
		dialect, err := DialectForDriver(driver)
		if err != nil || dialect != expected {
			t.Fatalf("driver %q: expected %s, got %q err=%v", driver, expected, dialect, err)
		}
	}
	if _, err := DialectForDriver("memory"); err == nil {
		t.Fatalf("expected memory driver to have no schema")
	}
}

func TestKVEntriesMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := hooks.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_changelog_kv_entries.up.sql",
		"data/sql/migrations/00001_changelog_kv_entries.down.sql",
		"data/sql/migrations/sqlite/00001_changelog_kv_entries.up.sql",
		"data/sql/migrations/sqlite/00001_changelog_kv_entries.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteKVEntriesMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-kv-entries?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := LedgerFS(DialectSQLite)
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_changelog_kv_entries.up.sql"); err != nil {
		t.Fatalf("apply up: %v", err)
	}

	insert := `INSERT INTO changelog_kv_entries (id, namespace, key, value) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "a", "changelog_events", "changelog-event:cli:v2.0.0:tag", []byte("{}")); err != nil {
		t.Fatalf("insert first row: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "b", "changelog_events", "changelog-event:cli:v2.0.0:tag", []byte("{}")); err == nil {
		t.Fatalf("expected unique (namespace, key) violation")
	}
	if _, err := db.ExecContext(ctx, insert, "c", "other", "changelog-event:cli:v2.0.0:tag", []byte("{}")); err != nil {
		t.Fatalf("expected same key in another namespace to be accepted: %v", err)
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_changelog_kv_entries.down.sql"); err != nil {
		t.Fatalf("apply down: %v", err)
	}
	var name string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"changelog_kv_entries",
	).Scan(&name)
	if err != sql.ErrNoRows {
		t.Fatalf("expected table to be dropped, got name=%q err=%v", name, err)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
