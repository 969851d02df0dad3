package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
	"github.com/veridian-apps/ledgersync/internal/remote"
	"github.com/veridian-apps/ledgersync/internal/store"
)

// RemoteStore is the subset of the cloud API the engine consumes.
// Satisfied by *remote.Client.
type RemoteStore interface {
	PullChanges(ctx context.Context, tenantID string, since time.Time) (*models.ChangeSet, error)
	PushUpsert(ctx context.Context, tenantID, entityType, entityID string, payload []byte) error
	PushDelete(ctx context.Context, tenantID, entityType, entityID string) error
}

// Default pusher configuration constants
const (
	// DefaultBatchSize is the number of outbox entries claimed per pass.
	DefaultBatchSize = 50
	// DefaultMaxRetries is the retry ceiling after which a retryable
	// failure becomes terminal and is surfaced to the user.
	DefaultMaxRetries = 8
	// DefaultBackoffBase is the first retry delay; doubles per attempt.
	DefaultBackoffBase = 10 * time.Second
)

// Pusher drains the outbox against the remote store.
type Pusher struct {
	outbox      store.OutboxRepo
	cursors     store.CursorRepo
	remote      RemoteStore
	batchSize   int
	maxRetries  int
	backoffBase time.Duration
}

// NewPusher creates an upstream pusher.
func NewPusher(outbox store.OutboxRepo, cursors store.CursorRepo, rs RemoteStore) *Pusher {
	return &Pusher{
		outbox:      outbox,
		cursors:     cursors,
		remote:      rs,
		batchSize:   DefaultBatchSize,
		maxRetries:  DefaultMaxRetries,
		backoffBase: DefaultBackoffBase,
	}
}

// Run drains one batch of pending entries for the tenant in FIFO order and
// reports counts into the pass report. One bad entry never blocks the rest
// of the batch; only later entries for the same entity id are held back so
// same-entity mutations reach the server in enqueue order.
func (p *Pusher) Run(ctx context.Context, tenantID string, report *models.SyncReport) error {
	now := time.Now().UTC()
	entries, err := p.outbox.ListPendingOutboxEntries(tenantID, now, p.batchSize)
	if err != nil {
		return fmt.Errorf("list pending entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	slog.Debug("Pusher.Run: draining outbox", "tenantID", tenantID, "entries", len(entries))

	// Entities whose earlier entry failed or was skipped this pass; later
	// entries for the same entity must wait for the next pass.
	blocked := make(map[string]bool)

	for _, entry := range entries {
		key := entry.EntityType + "/" + entry.EntityID

		if blocked[key] {
			report.PushSkipped++
			continue
		}
		held, err := p.outbox.HasEarlierUnsyncedEntry(tenantID, entry.EntityType, entry.EntityID, entry.ID, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("earlier entry check: %w", err)
		}
		if held {
			// An older entry for this entity is failed or backing off.
			blocked[key] = true
			report.PushSkipped++
			continue
		}

		if err := p.outbox.MarkOutboxSyncing(entry.ID); err != nil {
			if err == models.ErrEntryNotClaimable {
				// Another pass claimed it first; not an error.
				slog.Debug("Pusher.Run: entry already claimed", "id", entry.ID)
				report.PushSkipped++
				continue
			}
			return fmt.Errorf("claim entry %s: %w", entry.ID, err)
		}

		if err := p.push(ctx, entry); err != nil {
			p.recordFailure(entry, err, report)
			blocked[key] = true
			continue
		}

		if err := p.outbox.MarkOutboxSynced(entry.ID); err != nil {
			return fmt.Errorf("mark entry %s synced: %w", entry.ID, err)
		}
		report.Pushed++
		slog.Debug("Pusher.Run: entry synced", "id", entry.ID, "entityType", entry.EntityType, "entityID", entry.EntityID, "action", entry.Action)
	}

	if err := p.cursors.SetLastSyncedAt(tenantID, cursorScopeAll, time.Now().UTC()); err != nil {
		return fmt.Errorf("record push time: %w", err)
	}
	return nil
}

// push issues the remote call for one entry.
func (p *Pusher) push(ctx context.Context, entry models.OutboxEntry) error {
	switch entry.Action {
	case models.OutboxActionCreate, models.OutboxActionUpdate:
		return p.remote.PushUpsert(ctx, entry.TenantID, entry.EntityType, entry.EntityID, []byte(entry.Payload))
	case models.OutboxActionDelete:
		return p.remote.PushDelete(ctx, entry.TenantID, entry.EntityType, entry.EntityID)
	default:
		return fmt.Errorf("unknown outbox action %q", entry.Action)
	}
}

// recordFailure classifies the error and marks the entry failed. Retryable
// failures return the entry to pending with exponential backoff; terminal
// ones (4xx, or retries exhausted) stay failed and are surfaced.
func (p *Pusher) recordFailure(entry models.OutboxEntry, pushErr error, report *models.SyncReport) {
	retryable := remote.IsRetryable(pushErr)
	terminal := !retryable || entry.RetryCount+1 >= p.maxRetries

	var nextAttemptAt *time.Time
	if !terminal {
		backoff := p.backoffBase * time.Duration(1<<entry.RetryCount)
		next := time.Now().UTC().Add(backoff)
		nextAttemptAt = &next
	}

	msg := remote.ServerMessage(pushErr)
	if err := p.outbox.FailOutboxEntry(entry.ID, msg, nextAttemptAt, terminal); err != nil {
		slog.Error("Pusher.recordFailure: fail entry error", "id", entry.ID, "error", err)
	}
	report.PushFailed++

	if terminal {
		slog.Warn("Pusher.recordFailure: entry failed terminally, needs attention",
			"id", entry.ID, "entityType", entry.EntityType, "entityID", entry.EntityID, "error", msg, "retryCount", entry.RetryCount+1)
	} else {
		slog.Info("Pusher.recordFailure: entry will retry",
			"id", entry.ID, "entityType", entry.EntityType, "entityID", entry.EntityID, "error", msg, "nextAttemptAt", nextAttemptAt)
	}
}

// marshalPayload is a helper for callers that enqueue structured payloads.
func marshalPayload(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}
