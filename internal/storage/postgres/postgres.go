// Package postgres implements the storage interfaces on PostgreSQL
// via sqlx.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"whalewatch/internal/storage"
)

//go:embed schema.sql
var schema string

// DBTX is the common surface of *sqlx.DB and *sqlx.Tx, so stores work
// inside transactions in tests.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, maxConns int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// EnsureSchema applies the embedded schema. Every statement is
// idempotent (CREATE TABLE IF NOT EXISTS).
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// NewStores wires every Postgres-backed store.
func NewStores(db DBTX) *storage.Stores {
	return &storage.Stores{
		Wallets:       NewWalletStore(db),
		Activity:      NewActivityStore(db),
		Frequency:     NewFrequencyStore(db),
		CopyTrades:    NewCopyTradeStore(db),
		Opportunities: NewOpportunityStore(db),
	}
}
