// Package db records generation run history in SQLite or Postgres.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects SQL flavor differences between the supported drivers.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DB wraps the history database connection.
type DB struct {
	conn    *sql.DB
	dsn     string
	dialect Dialect
}

// DefaultDBPath returns ~/.variantfactory/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(home, ".variantfactory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// DialectFor picks the dialect from a DSN: postgres:// and postgresql:// URLs
// use Postgres, anything else is a SQLite path.
func DialectFor(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// Open opens or creates the database named by dsn.
func Open(dsn string) (*DB, error) {
	dialect := DialectFor(dsn)
	driver := "sqlite3"
	if dialect == Postgres {
		driver = "pgx"
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialect == SQLite {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if dialect == SQLite {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return &DB{conn: conn, dsn: dsn, dialect: dialect}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Name returns the DSN with any password masked.
func (d *DB) Name() string {
	if d.dialect == Postgres {
		if u, err := url.Parse(d.dsn); err == nil {
			return u.Redacted()
		}
	}
	return d.dsn
}

// Dialect reports which SQL flavor the connection speaks.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Rebind turns ? placeholders into $n for Postgres.
func (d *DB) Rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// schemaV1 is applied statement by statement; {{id}} is the dialect's
// auto-increment primary key column type.
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS runs (
    id          {{id}},
    spec_file   TEXT NOT NULL,
    output_dir  TEXT NOT NULL,
    status      TEXT NOT NULL CHECK(status IN ('running','completed','partial','failed')),
    configs     INTEGER NOT NULL DEFAULT 0,
    started_at  TEXT NOT NULL,
    finished_at TEXT
)`,
	`CREATE TABLE IF NOT EXISTS scenario_results (
    id          {{id}},
    run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    identifier  TEXT,
    status      TEXT NOT NULL CHECK(status IN ('completed','failed')),
    configs     INTEGER NOT NULL DEFAULT 0,
    reason      TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS idx_scenario_run ON scenario_results(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_scenario_identifier ON scenario_results(identifier)`,
	`CREATE TABLE IF NOT EXISTS stage_events (
    id          {{id}},
    run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    scenario    TEXT NOT NULL,
    stage       TEXT NOT NULL,
    stage_index INTEGER NOT NULL,
    inputs      INTEGER NOT NULL,
    outputs     INTEGER NOT NULL,
    cached      BOOLEAN NOT NULL DEFAULT FALSE,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    error       TEXT,
    timestamp   TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_stage_run ON stage_events(run_id, scenario, stage_index)`,
}

func (d *DB) idColumn() string {
	if d.dialect == Postgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// Migrate applies the database schema.
func (d *DB) Migrate() error {
	var count int
	err := d.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaV1 {
		if _, err := tx.Exec(strings.ReplaceAll(stmt, "{{id}}", d.idColumn())); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
	}
	if _, err := tx.Exec(d.Rebind("INSERT INTO schema_version (version, applied_at) VALUES (1, ?)"), now()); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	tables := []string{"stage_events", "scenario_results", "runs", "schema_version"}
	for _, t := range tables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}
