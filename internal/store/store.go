// Package store provides the durable storage backends for the sync engine.
//
// It defines the outbox, sync cursor, local entity, and conflict repositories
// and implements them for SQLite (embedded, per-device) and PostgreSQL
// (shared-workstation deployments). Both engine tables live in the same
// database as domain data so one crash/recovery story covers both.
package store

import "database/sql"

// Durability describes how much a local store implementation can be trusted
// to retain data across restarts. Best-effort tiers may be evicted by the
// platform; the engine treats a freshly empty best-effort store as a
// suspected loss event and re-pulls from epoch zero.
type Durability string

const (
	DurabilityDurable    Durability = "durable"
	DurabilityBestEffort Durability = "best-effort"
)

// Store is the full persistence surface the sync engine depends on.
type Store interface {
	OutboxRepo
	CursorRepo
	LocalRepo
	ConflictRepo

	// BeginTx starts a transaction so callers can enqueue an outbox entry
	// atomically with their own domain write.
	BeginTx() (*sql.Tx, error)

	// Close closes the underlying database connection.
	Close() error
}

// Opts holds configuration for store constructors.
type Opts struct {
	// DSN is the database connection string. For SQLite this is a file path.
	DSN string
	// Durability overrides the reported durability level of the local store.
	Durability Durability
}

// Option configures store construction.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithDurability overrides the durability level reported by the store.
// Used when the database file lives on an evictable platform tier.
func WithDurability(d Durability) Option {
	return func(o *Opts) {
		o.Durability = d
	}
}
