// Package store provides the OutboxRepo interface and model for restart-safe pending mutations.
package store

import (
	"database/sql"
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
)

// OutboxRepo defines the interface for durable outbox entry persistence.
// The outbox is the single source of truth for "what must still be pushed".
type OutboxRepo interface {
	// EnqueueOutboxEntry inserts a new pending entry and returns its ID.
	// The entry is validated; ID, status and timestamps are assigned here.
	EnqueueOutboxEntry(entry *models.OutboxEntry) (string, error)

	// EnqueueOutboxEntryTx is EnqueueOutboxEntry inside a caller-owned
	// transaction, so a domain write and its outbox entry commit atomically.
	EnqueueOutboxEntryTx(tx *sql.Tx, entry *models.OutboxEntry) (string, error)

	// ListPendingOutboxEntries returns up to limit pending entries for the
	// tenant whose next attempt is due, ordered by created_at ascending
	// (FIFO preserves the causal order of a user's own edits).
	ListPendingOutboxEntries(tenantID string, now time.Time, limit int) ([]models.OutboxEntry, error)

	// MarkOutboxSyncing transitions an entry from pending to syncing.
	// The transition is a compare-and-swap: if the entry is not currently
	// pending, models.ErrEntryNotClaimable is returned and the caller must
	// not push it. This is the guard against a manual trigger racing a
	// connectivity-triggered pass.
	MarkOutboxSyncing(id string) error

	// MarkOutboxSynced records confirmed server acceptance.
	MarkOutboxSynced(id string) error

	// FailOutboxEntry records a push failure. When terminal is false the
	// entry returns to pending with next_attempt_at set for backoff; when
	// terminal is true it stays failed and is surfaced to the user.
	FailOutboxEntry(id string, errMsg string, nextAttemptAt *time.Time, terminal bool) error

	// CountOutboxEntries counts a tenant's entries in the given status.
	CountOutboxEntries(tenantID string, status models.OutboxStatus) (int, error)

	// ListFailedOutboxEntries returns terminally failed entries needing
	// user attention, newest first.
	ListFailedOutboxEntries(tenantID string, limit int) ([]models.OutboxEntry, error)

	// HasUnsyncedOutboxEntry reports whether a pending or syncing entry
	// exists for the entity. The downstream puller skips remote rows that
	// still have one (the push, once it succeeds, becomes the new remote
	// truth on the next pull). Terminally failed entries do not count:
	// they will never be pushed, so they must not hold remote changes back.
	HasUnsyncedOutboxEntry(tenantID, entityType, entityID string) (bool, error)

	// HasEarlierUnsyncedEntry reports whether an older un-synced entry
	// exists for the same entity. The pusher must not send an entry while
	// an earlier one for the same entity id is still pending or failed:
	// same-entity mutations go out strictly in enqueue order.
	HasEarlierUnsyncedEntry(tenantID, entityType, entityID, excludeID string, before time.Time) (bool, error)

	// RequeueStaleSyncing resets entries stuck in syncing since before
	// staleBefore back to pending (crash recovery).
	RequeueStaleSyncing(staleBefore time.Time) (int, error)

	// PurgeSyncedOutboxEntries deletes synced entries older than the given
	// time. Synced entries are retained for audit until purged.
	PurgeSyncedOutboxEntries(olderThan time.Time) (int, error)
}
