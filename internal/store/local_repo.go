package store

import (
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
)

// LocalRepo defines the interface for the device-local entity rows the
// downstream puller applies remote changes to. The engine treats rows as
// opaque JSON plus the id/updated_at/deleted fields it needs for merging.
type LocalRepo interface {
	// GetEntityRow returns the row, or nil if it does not exist locally.
	GetEntityRow(tenantID, entityType, id string) (*models.EntityRow, error)

	// UpsertEntityRow inserts or replaces a row. Idempotent; re-applying an
	// already-applied remote row is harmless.
	UpsertEntityRow(tenantID, entityType string, row models.EntityRow) error

	// DeleteEntityRow removes a row. Deleting a missing row is not an error.
	DeleteEntityRow(tenantID, entityType, id string) error

	// ListEntityRowsChangedSince returns rows updated after the given time,
	// for callers outside the engine (diagnostics).
	ListEntityRowsChangedSince(tenantID, entityType string, since time.Time) ([]models.EntityRow, error)

	// CountEntityRows counts all local rows for a tenant across entity
	// types. Used by loss detection.
	CountEntityRows(tenantID string) (int, error)

	// DurabilityLevel reports how much this store can be trusted to retain
	// data across restarts.
	DurabilityLevel() Durability
}
