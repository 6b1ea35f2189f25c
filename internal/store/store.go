// Package store implements opsdec's persistence layer on top of an embedded
// DuckDB database: schema management, WAL checkpointing, and the typed
// query surface used by SessionEngine, AuthCore, ImageCache, and the API.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/logging"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting every query
// method defined on *Store run unchanged inside ReconcileCycle's
// transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store wraps the DuckDB connection and exposes opsdec's domain queries.
type Store struct {
	db   *sql.DB // lifecycle: Close, Ping, BeginTx
	conn querier // query execution: the *sql.DB, or a *sql.Tx during ReconcileCycle
	cfg  *config.DatabaseConfig
}

// Open creates the database file's parent directory if needed, opens the
// DuckDB connection, and runs schema initialization.
func Open(cfg *config.DatabaseConfig) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	connStr := fmt.Sprintf(
		"%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, cfg.MaxMemory,
	)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &Store{db: conn, conn: conn, cfg: cfg}

	if err := s.initialize(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return s, nil
}

func (s *Store) initialize() error {
	if err := s.createTables(); err != nil {
		return err
	}
	if err := s.runMigrations(); err != nil {
		return err
	}
	if err := s.createIndexes(); err != nil {
		return err
	}

	// Flush the WAL after schema setup so a crash before the first real
	// write can't leave DDL half-replayed on next start.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("checkpoint after schema initialization failed")
	}
	return nil
}

// Checkpoint forces DuckDB to flush its write-ahead log into the main
// database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the underlying connection. Called
// during graceful shutdown so the next start doesn't have to replay a
// large WAL.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("checkpoint on close failed")
	}
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying *sql.DB for packages (e.g. audit) that need to
// participate in the same connection without the store package growing a
// method per consumer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ReconcileCycle runs fn against a Store bound to a single *sql.Tx,
// committing if fn returns nil and rolling back otherwise. SessionEngine
// wraps an entire poll cycle's writes (session upserts/stops, history
// inserts, user-counter increments) in one call so a mid-cycle failure
// never leaves history and session state inconsistent with each other.
func (s *Store) ReconcileCycle(ctx context.Context, fn func(tx *Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reconcile transaction: %w", err)
	}

	txStore := &Store{db: s.db, conn: sqlTx, cfg: s.cfg}
	if err := fn(txStore); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			logging.Warn().Err(rbErr).Msg("rollback after reconcile cycle failure also failed")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit reconcile transaction: %w", err)
	}
	return nil
}
