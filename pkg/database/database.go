// Package database owns the PostgreSQL connection pool shared by repositories.
// Connections go through the pgx stdlib driver so database/sql consumers
// (sqlx, goose, watermill-sql) all speak to the same pool configuration.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/ghuser/procureflow/pkg/logger"
)

const (
	maxOpenConns    = 20
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
	pingTimeout     = 5 * time.Second
)

// Database wraps a sqlx pool with transaction helpers.
type Database struct {
	db  *sqlx.DB
	log logger.Logger
}

// NewPool opens a pgx-backed pool for url, applies pool limits, and verifies
// connectivity before returning.
func NewPool(ctx context.Context, url string, log logger.Logger) (*Database, error) {
	db, err := sqlx.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	return &Database{db: db, log: log}, nil
}

// New wraps an already-open handle. Used by tests and tooling.
func New(db *sqlx.DB, log logger.Logger) *Database {
	return &Database{db: db, log: log}
}

// DB returns the underlying sqlx handle for non-transactional queries.
func (d *Database) DB() *sqlx.DB {
	return d.db
}

// WithTx runs fn inside a transaction. fn's error (or a panic) rolls back;
// a nil return commits.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := d.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("database: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				d.log.ErrorContext(ctx, "database: rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("database: commit: %w", err)
	}
	return nil
}

// Ping checks the database connection health.
func (d *Database) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: ping: %w", err)
	}
	return nil
}

// Close releases the pool.
func (d *Database) Close() error {
	return d.db.Close()
}
