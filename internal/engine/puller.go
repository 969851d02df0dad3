package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veridian-apps/ledgersync/internal/models"
	"github.com/veridian-apps/ledgersync/internal/resolver"
	"github.com/veridian-apps/ledgersync/internal/store"
	"github.com/veridian-apps/ledgersync/internal/util"
)

// cursorScopeAll is the cursor key used when all entity types are pulled
// together through the single changes endpoint.
const cursorScopeAll = "*"

// Puller applies incremental remote changes to the local store through the
// conflict resolver.
type Puller struct {
	outbox    store.OutboxRepo
	cursors   store.CursorRepo
	local     store.LocalRepo
	conflicts store.ConflictRepo
	remote    RemoteStore
	resolver  resolver.Resolver
}

// NewPuller creates a downstream puller.
func NewPuller(st store.Store, rs RemoteStore, res resolver.Resolver) *Puller {
	return &Puller{
		outbox:    st,
		cursors:   st,
		local:     st,
		conflicts: st,
		remote:    rs,
		resolver:  res,
	}
}

// Run performs one incremental pull for the tenant. The cursor advances to
// the server-reported snapshot time, and only after every returned row has
// been durably applied; a partial apply leaves the cursor untouched so the
// next pass re-fetches everything (pulls are cheap and idempotent).
func (p *Puller) Run(ctx context.Context, tenantID string, report *models.SyncReport) error {
	cursor, err := p.cursors.GetSyncCursor(tenantID, cursorScopeAll)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	cs, err := p.remote.PullChanges(ctx, tenantID, cursor.LastPulledAt)
	if err != nil {
		return fmt.Errorf("pull changes: %w", err)
	}

	for entityType, rows := range cs.Entities {
		for _, row := range rows {
			if err := p.applyRow(tenantID, entityType, row, report); err != nil {
				// Do not advance the cursor at all this pass; the whole
				// response is re-fetched and re-applied next time.
				return fmt.Errorf("apply %s/%s: %w", entityType, row.ID, err)
			}
		}
	}

	if !cs.UpdatedAt.IsZero() {
		if err := p.cursors.SetSyncCursor(tenantID, cursorScopeAll, cs.UpdatedAt); err != nil {
			return fmt.Errorf("advance cursor: %w", err)
		}
		report.CursorMovedTo = cs.UpdatedAt
	}
	slog.Debug("Puller.Run: pull applied", "tenantID", tenantID, "pulled", report.Pulled, "skipped", report.PullSkipped, "cursor", cs.UpdatedAt)
	return nil
}

func (p *Puller) applyRow(tenantID, entityType string, row models.EntityRow, report *models.SyncReport) error {
	// A pending local mutation for this entity defers the remote version:
	// the push, once it succeeds, becomes the new remote truth on the next
	// pull. Applying now would have the resolver fight the pusher.
	// Terminally failed entries do not defer; since they will never be
	// pushed, the remote version must still reach the local store.
	unsynced, err := p.outbox.HasUnsyncedOutboxEntry(tenantID, entityType, row.ID)
	if err != nil {
		return fmt.Errorf("outbox check: %w", err)
	}
	if unsynced {
		report.PullSkipped++
		return nil
	}

	if row.Deleted {
		if err := p.local.DeleteEntityRow(tenantID, entityType, row.ID); err != nil {
			return fmt.Errorf("apply tombstone: %w", err)
		}
		report.Pulled++
		return nil
	}

	local, err := p.local.GetEntityRow(tenantID, entityType, row.ID)
	if err != nil {
		return fmt.Errorf("load local row: %w", err)
	}

	result, err := p.resolver.Resolve(models.ConflictContext{
		EntityType: entityType,
		EntityID:   row.ID,
		Local:      local,
		Remote:     row,
	})
	if err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}

	switch result.Use {
	case models.ConflictUseRemote:
		if err := p.local.UpsertEntityRow(tenantID, entityType, row); err != nil {
			return fmt.Errorf("apply remote row: %w", err)
		}
		report.Pulled++
	case models.ConflictUseMerged:
		if result.Merged == nil {
			return fmt.Errorf("resolver returned merged without a merged row")
		}
		if err := p.local.UpsertEntityRow(tenantID, entityType, *result.Merged); err != nil {
			return fmt.Errorf("apply merged row: %w", err)
		}
		report.Pulled++
	case models.ConflictUseLocal:
		// Local wins; nothing to persist.
		report.PullSkipped++
	default:
		return fmt.Errorf("resolver returned unknown choice %q", result.Use)
	}

	if result.NeedsManualReview {
		rec := models.ConflictRecord{
			ID:         util.GenerateConflictID(),
			TenantID:   tenantID,
			EntityType: entityType,
			EntityID:   row.ID,
			RemoteBody: string(row.Body),
		}
		if local != nil {
			rec.LocalBody = string(local.Body)
		}
		if _, err := p.conflicts.RecordConflict(rec); err != nil {
			return fmt.Errorf("record conflict: %w", err)
		}
		report.Conflicts++
		slog.Info("Puller.applyRow: conflict needs manual review", "tenantID", tenantID, "entityType", entityType, "entityID", row.ID)
	}
	return nil
}
