package store

import (
	"github.com/veridian-apps/ledgersync/internal/models"
)

// ConflictRepo defines the interface for persisted manual-review conflicts.
// A resolver that returns NeedsManualReview gets its context recorded here
// for the application to present; local wins until the user decides.
type ConflictRepo interface {
	// RecordConflict inserts a conflict record. If an unresolved record
	// already exists for the same (tenant, entityType, entityID), its ID is
	// returned and no new record is created.
	RecordConflict(rec models.ConflictRecord) (string, error)

	// ListOpenConflicts returns unresolved conflicts for a tenant, oldest first.
	ListOpenConflicts(tenantID string, limit int) ([]models.ConflictRecord, error)

	// ResolveConflict marks a conflict record as resolved.
	ResolveConflict(id string) error
}
