// Package sqlstore persists alerts, the trade ledger, paper balances and
// exchange credentials in SQLite (default) or PostgreSQL via sqlx.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("sqlstore: not found")
	// ErrInsufficientBalance is returned when a balance change would go negative.
	ErrInsufficientBalance = errors.New("sqlstore: insufficient balance")
)

// Config selects the database.
type Config struct {
	Driver string // "sqlite3" or "postgres"
	DSN    string // file path for sqlite3, connection URL for postgres
}

// Store is the relational store. Queries are written with ? placeholders
// and rebound for the active driver.
type Store struct {
	db *sqlx.DB
}

// Open connects, configures the pool and creates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn := cfg.DSN
	if cfg.Driver == "sqlite3" && !strings.Contains(dsn, "?") && !strings.Contains(dsn, ":memory:") {
		dsn += "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore open %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite3" {
		// Single writer; also keeps :memory: databases on one connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &Store{db: db}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore schema: %w", err)
	}

	log.Printf("[sqlstore] opened %s database", cfg.Driver)
	return s, nil
}

// DB returns the underlying handle for health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_alerts (
			id           TEXT PRIMARY KEY,
			symbol       TEXT NOT NULL,
			target_price DOUBLE PRECISION NOT NULL,
			condition    TEXT NOT NULL,
			message      TEXT NOT NULL DEFAULT '',
			is_active    BOOLEAN NOT NULL DEFAULT TRUE,
			triggered    BOOLEAN NOT NULL DEFAULT FALSE,
			triggered_at TIMESTAMP NULL,
			created_at   TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_alerts_active ON price_alerts (is_active)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id         TEXT PRIMARY KEY,
			symbol     TEXT NOT NULL,
			side       TEXT NOT NULL,
			amount     DOUBLE PRECISION NOT NULL,
			price      DOUBLE PRECISION NOT NULL,
			total      DOUBLE PRECISION NOT NULL,
			is_paper   BOOLEAN NOT NULL,
			order_id   TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions (created_at)`,

		`CREATE TABLE IF NOT EXISTS paper_balances (
			asset  TEXT PRIMARY KEY,
			amount TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS api_credentials (
			name       TEXT PRIMARY KEY,
			api_key    TEXT NOT NULL,
			api_secret TEXT NOT NULL,
			testnet    BOOLEAN NOT NULL DEFAULT FALSE,
			is_active  BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
