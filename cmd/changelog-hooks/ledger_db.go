package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-changelog-hooks/core"
	hookmigrations "github.com/goliatone/go-changelog-hooks/migrations"
)

type ledgerPersistenceConfig struct {
	driver string
	dsn    string
}

func (c ledgerPersistenceConfig) GetDebug() bool {
	return strings.EqualFold(os.Getenv("CHANGELOG_HOOKS_DB_DEBUG"), "true")
}

func (c ledgerPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c ledgerPersistenceConfig) GetServer() string {
	return c.dsn
}

func (c ledgerPersistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c ledgerPersistenceConfig) GetOtelIdentifier() string {
	return "changelog-hooks"
}

// openLedgerDB returns nil for the memory driver. SQL drivers are migrated
// before the client is returned.
func openLedgerDB(ctx context.Context, cfg core.LedgerConfig) (*persistence.Client, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var dialect schema.Dialect
	switch driver {
	case core.LedgerDriverMemory, "":
		return nil, nil
	case core.LedgerDriverSQLite:
		dialect = sqlitedialect.New()
	case core.LedgerDriverPostgres:
		dialect = pgdialect.New()
	default:
		return nil, fmt.Errorf("ledger: unsupported driver %q", cfg.Driver)
	}

	migrationDialect, err := hookmigrations.DialectForDriver(driver)
	if err != nil {
		return nil, err
	}
	ledgerMigrations, err := hookmigrations.LedgerFS(migrationDialect)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", driver, err)
	}
	if driver == core.LedgerDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(ledgerPersistenceConfig{driver: driver, dsn: cfg.DSN}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ledger: persistence client: %w", err)
	}

	client.RegisterSQLMigrations(ledgerMigrations)
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}
	return client, nil
}

func envOr(key string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
