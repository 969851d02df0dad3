// Package store provides storage backends for LedgerSync.
//
// This file implements the SQLite-backed store: connection setup, migrations,
// and the local entity row repository.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/veridian-apps/ledgersync/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db         *sql.DB
	durability Durability
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure the engine tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	durability := cfg.Durability
	if durability == "" {
		durability = DurabilityDurable
	}

	return &SQLiteStore{db: db, durability: durability}, nil
}

// BeginTx starts a transaction for atomic domain-write-plus-enqueue callers.
func (s *SQLiteStore) BeginTx() (*sql.Tx, error) {
	return s.db.Begin()
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// DurabilityLevel reports the configured durability of this store.
func (s *SQLiteStore) DurabilityLevel() Durability {
	return s.durability
}

func (s *SQLiteStore) GetEntityRow(tenantID, entityType, id string) (*models.EntityRow, error) {
	row := s.db.QueryRow(
		`SELECT id, updated_at, deleted, body FROM entity_rows
		 WHERE tenant_id = ? AND entity_type = ? AND id = ?`,
		tenantID, entityType, id,
	)
	r, err := scanEntityRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetEntityRow failed", "error", err, "entityType", entityType, "entityID", id)
		return nil, fmt.Errorf("get entity row failed: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) UpsertEntityRow(tenantID, entityType string, row models.EntityRow) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO entity_rows (tenant_id, entity_type, id, updated_at, deleted, body)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tenantID, entityType, row.ID, row.UpdatedAt, row.Deleted, string(row.Body),
	)
	if err != nil {
		slog.Error("SQLiteStore.UpsertEntityRow failed", "error", err, "entityType", entityType, "entityID", row.ID)
		return fmt.Errorf("upsert entity row failed: %w", err)
	}
	slog.Debug("SQLiteStore.UpsertEntityRow", "entityType", entityType, "entityID", row.ID)
	return nil
}

func (s *SQLiteStore) DeleteEntityRow(tenantID, entityType, id string) error {
	_, err := s.db.Exec(
		`DELETE FROM entity_rows WHERE tenant_id = ? AND entity_type = ? AND id = ?`,
		tenantID, entityType, id,
	)
	if err != nil {
		slog.Error("SQLiteStore.DeleteEntityRow failed", "error", err, "entityType", entityType, "entityID", id)
		return fmt.Errorf("delete entity row failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEntityRowsChangedSince(tenantID, entityType string, since time.Time) ([]models.EntityRow, error) {
	rows, err := s.db.Query(
		`SELECT id, updated_at, deleted, body FROM entity_rows
		 WHERE tenant_id = ? AND entity_type = ? AND updated_at > ?
		 ORDER BY updated_at ASC`,
		tenantID, entityType, since,
	)
	if err != nil {
		slog.Error("SQLiteStore.ListEntityRowsChangedSince query failed", "error", err, "entityType", entityType)
		return nil, fmt.Errorf("list changed entity rows failed: %w", err)
	}
	defer rows.Close()

	var out []models.EntityRow
	for rows.Next() {
		r, err := scanEntityRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("changed entity rows iteration failed: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CountEntityRows(tenantID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM entity_rows WHERE tenant_id = ?`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count entity rows failed: %w", err)
	}
	return n, nil
}
