// Package store provides storage backends for LedgerSync.
//
// This file implements the PostgreSQL-backed store for shared-workstation
// deployments where several POS terminals share one local database.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/veridian-apps/ledgersync/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// BeginTx starts a transaction for atomic domain-write-plus-enqueue callers.
func (s *PostgresStore) BeginTx() (*sql.Tx, error) {
	return s.db.Begin()
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

// DurabilityLevel reports durable: a server-backed Postgres store does not
// live on an evictable platform tier.
func (s *PostgresStore) DurabilityLevel() Durability {
	return DurabilityDurable
}

func (s *PostgresStore) GetEntityRow(tenantID, entityType, id string) (*models.EntityRow, error) {
	row := s.db.QueryRow(
		`SELECT id, updated_at, deleted, body FROM entity_rows
		 WHERE tenant_id = $1 AND entity_type = $2 AND id = $3`,
		tenantID, entityType, id,
	)
	r, err := scanEntityRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetEntityRow failed", "error", err, "entityType", entityType, "entityID", id)
		return nil, fmt.Errorf("get entity row failed: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) UpsertEntityRow(tenantID, entityType string, row models.EntityRow) error {
	_, err := s.db.Exec(
		`INSERT INTO entity_rows (tenant_id, entity_type, id, updated_at, deleted, body)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id, entity_type, id) DO UPDATE
		 SET updated_at = excluded.updated_at, deleted = excluded.deleted, body = excluded.body`,
		tenantID, entityType, row.ID, row.UpdatedAt, row.Deleted, string(row.Body),
	)
	if err != nil {
		slog.Error("PostgresStore.UpsertEntityRow failed", "error", err, "entityType", entityType, "entityID", row.ID)
		return fmt.Errorf("upsert entity row failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteEntityRow(tenantID, entityType, id string) error {
	_, err := s.db.Exec(
		`DELETE FROM entity_rows WHERE tenant_id = $1 AND entity_type = $2 AND id = $3`,
		tenantID, entityType, id,
	)
	if err != nil {
		slog.Error("PostgresStore.DeleteEntityRow failed", "error", err, "entityType", entityType, "entityID", id)
		return fmt.Errorf("delete entity row failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEntityRowsChangedSince(tenantID, entityType string, since time.Time) ([]models.EntityRow, error) {
	rows, err := s.db.Query(
		`SELECT id, updated_at, deleted, body FROM entity_rows
		 WHERE tenant_id = $1 AND entity_type = $2 AND updated_at > $3
		 ORDER BY updated_at ASC`,
		tenantID, entityType, since,
	)
	if err != nil {
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

func (s *PostgresStore) CountEntityRows(tenantID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM entity_rows WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count entity rows failed: %w", err)
	}
	return n, nil
}
