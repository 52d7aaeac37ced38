// Package postgres provides Postgres-backed persistence for literature
// records and crawl run history.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool shared by the stores.
type Config struct {
	DSN             string
	RecordTable     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the slice of pgxpool.Pool the stores use. pgxmock pools satisfy it.
type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Open connects a pool using cfg.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the record and run tables when they are missing.
func Migrate(ctx context.Context, db querier, recordTable string) error {
	table, err := tableName(recordTable)
	if err != nil {
		return err
	}
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id            UUID PRIMARY KEY,
	title         TEXT NOT NULL,
	title_hash    CHAR(64) NOT NULL,
	authors       TEXT NOT NULL DEFAULT '',
	journal       TEXT NOT NULL DEFAULT '',
	publish_date  TEXT NOT NULL DEFAULT '',
	abstract      TEXT NOT NULL DEFAULT '',
	keywords      TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	origin_source TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    TIMESTAMPTZ NOT NULL
)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_title_hash_idx ON %[1]s (title_hash)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_created_at_idx ON %[1]s (created_at DESC)`, table),
		`
CREATE TABLE IF NOT EXISTS crawl_runs (
	id            UUID PRIMARY KEY,
	keyword       TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	found         BIGINT NOT NULL DEFAULT 0,
	saved         BIGINT NOT NULL DEFAULT 0,
	error_message TEXT
)`,
		`
CREATE TABLE IF NOT EXISTS crawl_run_sources (
	run_id      UUID NOT NULL REFERENCES crawl_runs (id) ON DELETE CASCADE,
	source      TEXT NOT NULL,
	last_update TIMESTAMPTZ NOT NULL,
	records     BIGINT NOT NULL DEFAULT 0,
	failures    BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, source)
)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func tableName(name string) (string, error) {
	if name == "" {
		name = DefaultRecordTable
	}
	if !validTableName.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}
