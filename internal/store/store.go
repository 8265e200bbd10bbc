// Package store provides the persistent local store for the
// gestion-ventes sync core.
//
// The store is an embedded SQLite database holding independent
// collections: the product and client catalogs (read-mostly caches of
// server data), confirmed sales, the pending-operation queues for
// sales and expenses recorded offline, and a singleton metadata table.
//
// The database runs in embedded mode with WAL so reads stay concurrent
// with writes from a sync pass.
//
// Schema versions are tracked with PRAGMA user_version and migrations
// are forward-only: opening an old database upgrades it in place, and
// obsolete collections from prior layouts are dropped along the way.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// schemaVersion is the current PRAGMA user_version.
//
// Version history:
//
//	1: legacy single-table offline design (ventes_offline)
//	2: pending-operation queue model (ventes_pending, depenses_pending)
const schemaVersion = 2

// ErrStorageUnavailable indicates local persistence could not be
// opened (missing permissions, exhausted quota, read-only media).
// Callers should degrade to an in-memory store rather than crash.
var ErrStorageUnavailable = errors.New("local storage unavailable")

// Store wraps the SQLite connection with collection-level operations.
type Store struct {
	conn *sql.DB
	path string

	// persistent is false for the in-memory degraded fallback.
	persistent bool

	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates the local store at the given path and applies
// any pending schema migrations. Safe to call repeatedly: an already
// current database is left untouched.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create store directory: %v", ErrStorageUnavailable, err)
	}

	s, err := open("file:"+path, path, true)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenMemory opens a non-persistent store. Used as the degraded
// fallback when local persistence is unavailable: the application can
// keep recording sales, but they do not survive a restart.
func OpenMemory() (*Store, error) {
	return open("file::memory:", ":memory:", false)
}

// OpenWithFallback opens the store at path and, if persistence is
// unavailable, falls back to a memory-backed store instead of failing.
// The degradation is logged; it is never silent.
func OpenWithFallback(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	s, err := Open(path)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrStorageUnavailable) {
		return nil, err
	}

	logger.Printf("WARNING: %v; falling back to in-memory store (pending operations will not survive restart)", err)
	return OpenMemory()
}

func open(connStr, path string, persistent bool) (*Store, error) {
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	// A memory database must stay on a single connection or each
	// conn in the pool would see its own empty store.
	if persistent {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	} else {
		conn.SetMaxOpenConns(1)
	}

	s := &Store{
		conn:       conn,
		path:       path,
		persistent: persistent,
	}

	if persistent {
		if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := s.migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the filesystem path of the store (":memory:" for the
// degraded fallback).
func (s *Store) Path() string {
	return s.path
}

// Persistent reports whether the store survives process restart.
func (s *Store) Persistent() bool {
	return s.persistent
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the store, checkpointing the WAL first so all changes
// reach the main database file. Idempotent. The connection stays
// non-nil so an operation racing with Close gets an error from the
// closed pool rather than a panic.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.persistent {
			if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
			}
		}

		if err := s.conn.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close store: %w", err)
		}
	})
	return s.closeErr
}

// migrate brings the schema up to schemaVersion. Migrations run once,
// forward-only; there is no downgrade path.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version > schemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported version %d", version, schemaVersion)
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	for v := version; v < schemaVersion; v++ {
		if err := applyMigration(ctx, tx, v+1); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", v+1, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// applyMigration applies a single version step inside tx.
func applyMigration(ctx context.Context, tx *sql.Tx, target int) error {
	switch target {
	case 1:
		// Fresh databases skip straight through version 1; it only
		// exists so pre-queue databases report a nonzero version.
		return nil

	case 2:
		// The version 1 layout kept offline sales in a single mutable
		// table. It is replaced wholesale by the pending queues.
		stmts := []string{
			`DROP TABLE IF EXISTS ventes_offline`,

			`CREATE TABLE IF NOT EXISTS produits (
				id INTEGER PRIMARY KEY,
				nom TEXT NOT NULL,
				prix_unitaire REAL NOT NULL,
				quantite INTEGER NOT NULL DEFAULT 0,
				code_barre TEXT,
				boutique_id INTEGER NOT NULL,
				vendu INTEGER NOT NULL DEFAULT 0
			)`,

			`CREATE TABLE IF NOT EXISTS clients (
				id INTEGER PRIMARY KEY,
				nom TEXT NOT NULL,
				telephone TEXT,
				email TEXT
			)`,

			`CREATE TABLE IF NOT EXISTS ventes_synced (
				id INTEGER PRIMARY KEY,
				produit_id INTEGER NOT NULL,
				quantite INTEGER NOT NULL,
				montant_total REAL NOT NULL,
				boutique_id INTEGER NOT NULL,
				vendeur_id INTEGER,
				client_id INTEGER,
				date_vente TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS ventes_pending (
				offline_id TEXT PRIMARY KEY,
				produit_id INTEGER NOT NULL,
				quantite INTEGER NOT NULL,
				montant_total REAL NOT NULL,
				boutique_id INTEGER NOT NULL,
				vendeur_id INTEGER,
				client_id INTEGER,
				note TEXT,
				created_at TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'PENDING',
				last_error TEXT
			)`,

			`CREATE TABLE IF NOT EXISTS depenses (
				id INTEGER PRIMARY KEY,
				montant REAL NOT NULL,
				categorie TEXT NOT NULL,
				boutique_id INTEGER NOT NULL,
				date_depense TEXT NOT NULL,
				description TEXT
			)`,

			`CREATE TABLE IF NOT EXISTS depenses_pending (
				offline_id TEXT PRIMARY KEY,
				montant REAL NOT NULL,
				categorie TEXT NOT NULL,
				boutique_id INTEGER NOT NULL,
				date_depense TEXT NOT NULL,
				description TEXT,
				created_at TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'PENDING',
				last_error TEXT
			)`,

			`CREATE TABLE IF NOT EXISTS metadata (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,

			`CREATE INDEX IF NOT EXISTS idx_ventes_pending_created
				ON ventes_pending(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_depenses_pending_created
				ON depenses_pending(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_produits_boutique
				ON produits(boutique_id)`,
			`CREATE INDEX IF NOT EXISTS idx_ventes_synced_date
				ON ventes_synced(date_vente)`,
		}

		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown schema version %d", target)
	}
}

// int64ToNull converts an int64 pointer to a nullable SQL int.
func int64ToNull(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// nullToInt64 converts a nullable SQL int to an int64 pointer.
func nullToInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
