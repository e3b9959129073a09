// Package store opens the backing database and bootstraps the schema.
// Postgres is the normal deployment; the embedded sqlite driver covers
// single-node setups where running a database server is overkill.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// DB wraps *sql.DB with the driver it was opened with, so repositories can
// rebind placeholders without caring which backend is live.
type DB struct {
	*sql.DB
	driver Driver
}

func Open(driver Driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging %s store: %w", driver, err)
	}
	return &DB{DB: db, driver: driver}, nil
}

var placeholder = regexp.MustCompile(`\$\d+`)

// Rebind converts $N placeholders to the backend's form. Queries are written
// with Postgres placeholders in strictly increasing order, so the sqlite
// rewrite to ? is purely positional.
func (d *DB) Rebind(query string) string {
	if d.driver == DriverPostgres {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

// Bootstrap creates every table the bot needs. Idempotent; the type names
// are chosen to carry the right affinity on both backends.
func (d *DB) Bootstrap(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS groups (
			chat_id BIGINT PRIMARY KEY,
			total_source DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_target DOUBLE PRECISION NOT NULL DEFAULT 0,
			paid_target DOUBLE PRECISION NOT NULL DEFAULT 0,
			remaining_target DOUBLE PRECISION NOT NULL DEFAULT 0,
			rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			exchange_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_clear_at TIMESTAMP NOT NULL,
			auto_extract BOOLEAN NOT NULL DEFAULT FALSE,
			template TEXT NOT NULL DEFAULT '',
			grouped_display BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			source_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			target_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			card_code TEXT NOT NULL DEFAULT '',
			credit_limit DOUBLE PRECISION NOT NULL DEFAULT 0,
			rate_at_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			exchange_rate_at_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			sender_label TEXT NOT NULL DEFAULT '',
			raw_command TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			message_ref TEXT NOT NULL DEFAULT '',
			skipped BOOLEAN NOT NULL DEFAULT FALSE,
			skip_reason TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_chat_time ON entries (chat_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS cards (
			chat_id BIGINT NOT NULL,
			code TEXT NOT NULL,
			total DOUBLE PRECISION NOT NULL DEFAULT 0,
			paid DOUBLE PRECISION NOT NULL DEFAULT 0,
			card_limit DOUBLE PRECISION NOT NULL DEFAULT 0,
			hidden BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (chat_id, code)
		)`,
		`CREATE TABLE IF NOT EXISTS operators (
			chat_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			added_by BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (chat_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			record_data TEXT NOT NULL DEFAULT '{}',
			record_metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrapping schema: %w", err)
		}
	}
	return nil
}
