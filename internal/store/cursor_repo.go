package store

import (
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
)

// CursorRepo defines the interface for sync watermark persistence.
// Pure key-value semantics keyed by (tenant, entity type); no business logic.
type CursorRepo interface {
	// GetSyncCursor returns the cursor for the tenant and entity type, or a
	// zero-value cursor (epoch-zero watermark) if none exists yet.
	GetSyncCursor(tenantID, entityType string) (models.SyncCursor, error)

	// SetSyncCursor upserts the last-pulled watermark.
	SetSyncCursor(tenantID, entityType string, lastPulledAt time.Time) error

	// SetLastSyncedAt upserts the last successful push time, preserving the
	// pull watermark.
	SetLastSyncedAt(tenantID, entityType string, t time.Time) error

	// ListSyncCursors returns all cursors for a tenant.
	ListSyncCursors(tenantID string) ([]models.SyncCursor, error)

	// ResetSyncCursors deletes all cursors for a tenant, forcing the next
	// pull to start from epoch zero. Used by loss recovery.
	ResetSyncCursors(tenantID string) error
}
