// Package migrations serves the embedded ledger schema for each SQL dialect.
package migrations

import (
	"fmt"
	"io/fs"
	"strings"

	hooks "github.com/goliatone/go-changelog-hooks"
	"github.com/goliatone/go-changelog-hooks/core"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// LedgerTable is created by the first migration of both dialects.
	LedgerTable = "changelog_kv_entries"

	rootPath = "data/sql/migrations"
)

// DialectForDriver maps a ledger driver to the migration tree it needs.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case core.LedgerDriverSQLite, DialectSQLite:
		return DialectSQLite, nil
	case core.LedgerDriverPostgres:
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: no ledger schema for driver %q", driver)
	}
}

// LedgerFS returns the ledger migrations for dialect, read from the embedded
// tree unless source is given. The tree must hold at least one up migration.
func LedgerFS(dialect string, source ...fs.FS) (fs.FS, error) {
	root := hooks.GetMigrationsFS()
	if len(source) > 0 && source[0] != nil {
		root = source[0]
	}
	dir := rootPath
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectPostgres:
	case DialectSQLite:
		dir += "/sqlite"
	default:
		return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	sub, err := fs.Sub(root, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", dir, err)
	}
	matches, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("migrations: %s has no *.up.sql files", dir)
	}
	return sub, nil
}
