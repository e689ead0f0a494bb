// Package storage provides the embedded relational store for powerbot.
//
// The live database is held in memory; mutations become durable only when
// the store is persisted to its snapshot path. With FlushEveryWrite (the
// default) every Execute and every committed Transaction persists once,
// so the durability window is one mutation wide. With FlushManual the
// caller decides when to persist. Either way: data is durable as of the
// last persist, anything after it is lost on abrupt termination.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/storage/migrations"
)

// FlushPolicy controls when in-memory mutations are persisted to the
// snapshot file.
type FlushPolicy string

const (
	// FlushEveryWrite persists after every Execute and after every
	// committed Transaction (once per batch, not once per row).
	FlushEveryWrite FlushPolicy = "every-write"
	// FlushManual persists only on explicit Persist and on Close.
	FlushManual FlushPolicy = "manual"
)

// Config holds storage engine configuration.
type Config struct {
	// SnapshotPath is the file the in-memory store is serialized to.
	// Empty means ephemeral: the store lives and dies in memory.
	SnapshotPath string
	// Flush selects the durability window. Zero value means
	// FlushEveryWrite.
	Flush FlushPolicy
}

// ExecResult reports the outcome of a mutating statement.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// Store wraps the in-memory relational database and its snapshot file.
type Store struct {
	db     *sql.DB
	path   string
	flush  FlushPolicy
	logger *slog.Logger
}

// Open creates the in-memory database, applies migrations, and restores
// rows from the snapshot file if one exists.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	flush := cfg.Flush
	if flush == "" {
		flush = FlushEveryWrite
	}

	// Unique name keeps concurrently open stores isolated while shared
	// cache lets pooled connections see the same memory database.
	connStr := fmt.Sprintf("file:powerbot-%s?mode=memory&cache=shared&_timeout=5000&_busy_timeout=5000",
		strings.ToLower(ulid.Make().String()))

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, models.NewPersistenceError("open", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, models.NewPersistenceError("open", fmt.Errorf("failed to enable foreign keys: %w", err))
	}

	s := &Store{
		db:     db,
		path:   cfg.SnapshotPath,
		flush:  flush,
		logger: logger.With("component", "storage"),
	}

	if err := migrations.Run(db, logger); err != nil {
		db.Close()
		return nil, models.NewPersistenceError("migrate", err)
	}

	if s.path != "" {
		if err := s.restore(); err != nil {
			db.Close()
			return nil, models.NewPersistenceError("restore", err)
		}
	}

	s.logger.Info("store opened", "snapshot", s.path, "flush", string(flush), "ephemeral", s.path == "")
	return s, nil
}

// DB exposes the underlying handle for callers that need raw access
// (migration inspection, test fixtures). Mutations through it bypass the
// flush policy.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FlushMode returns the configured flush policy.
func (s *Store) FlushMode() FlushPolicy {
	return s.flush
}

// Execute runs a mutating statement and reports affected rows and the
// last generated rowid. Under FlushEveryWrite the store persists before
// returning.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (ExecResult, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, models.NewPersistenceError("execute", err)
	}

	var out ExecResult
	// Both are best-effort: not every statement produces them.
	out.RowsAffected, _ = res.RowsAffected()
	out.LastInsertID, _ = res.LastInsertId()

	if s.flush == FlushEveryWrite {
		if err := s.Persist(ctx); err != nil {
			return out, err
		}
	}
	return out, nil
}

// QueryAll runs a parameterized query returning all matching rows. The
// caller owns the returned rows and must Close them.
func (s *Store) QueryAll(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewPersistenceError("query", err)
	}
	return rows, nil
}

// QueryOne runs a parameterized query expected to return at most one row.
func (s *Store) QueryOne(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Transaction begins a transaction, invokes fn, and commits on success.
// Any error from fn rolls the transaction back and is returned unchanged.
// A committed transaction counts as one write for the flush policy, so
// batch inserts persist once per batch.
func (s *Store) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.NewPersistenceError("begin", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return models.NewPersistenceError("commit", err)
	}
	committed = true

	if s.flush == FlushEveryWrite {
		return s.Persist(ctx)
	}
	return nil
}

// Persist serializes the full in-memory store to the snapshot path. The
// write is atomic: a temp file is written first and renamed over the
// previous snapshot. Ephemeral stores (no path) treat this as a no-op.
func (s *Store) Persist(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return models.NewPersistenceError("persist", err)
		}
	}

	tmp := s.path + ".tmp"
	// VACUUM INTO refuses to overwrite; clear any stale temp first.
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return models.NewPersistenceError("persist", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO "+sqlQuote(tmp)); err != nil {
		return models.NewPersistenceError("persist", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return models.NewPersistenceError("persist", err)
	}

	s.logger.Debug("store persisted", "snapshot", s.path)
	return nil
}

// Close persists once (file-backed stores only) and closes the database.
func (s *Store) Close() error {
	if s.path != "" {
		if err := s.Persist(context.Background()); err != nil {
			s.logger.Warn("failed to persist store before close", "error", err)
		}
	}
	s.logger.Debug("store closing")
	return s.db.Close()
}

// restore copies rows from an existing snapshot into the fresh in-memory
// database. Migrations have already created the target schema; the
// snapshot must have been written by a compatible version.
func (s *Store) restore() error {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	if _, err := s.db.Exec("ATTACH DATABASE " + sqlQuote(s.path) + " AS snapshot"); err != nil {
		return fmt.Errorf("failed to attach snapshot: %w", err)
	}
	defer s.db.Exec("DETACH DATABASE snapshot")

	restored := 0
	for _, table := range migrations.Tables() {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM snapshot.sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to inspect snapshot: %w", err)
		}

		res, err := s.db.Exec(fmt.Sprintf("INSERT INTO main.%s SELECT * FROM snapshot.%s", table, table))
		if err != nil {
			return fmt.Errorf("failed to restore table %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		restored += int(n)
	}

	if restored > 0 {
		s.logger.Info("store restored from snapshot", "snapshot", s.path, "rows", restored)
	}
	return nil
}

// Stats returns row counts for the health surface.
func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	stats := StoreStats{
		Snapshot: s.path,
		Flush:    string(s.flush),
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&stats.Sessions); err != nil {
		return stats, models.NewPersistenceError("stats", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scraped_data").Scan(&stats.ScrapedRecords); err != nil {
		return stats, models.NewPersistenceError("stats", err)
	}
	return stats, nil
}

// StoreStats contains store statistics.
type StoreStats struct {
	Snapshot       string `json:"snapshot,omitempty"`
	Flush          string `json:"flush"`
	Sessions       int    `json:"sessions"`
	ScrapedRecords int    `json:"scraped_records"`
}

// sqlQuote renders a string as a single-quoted SQL literal. File paths in
// ATTACH and VACUUM INTO cannot be bound as parameters by every driver.
func sqlQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
