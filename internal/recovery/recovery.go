// Package recovery restores engine state after an application restart.
//
// It requeues outbox entries stuck in syncing (a crash mid-push leaves them
// claimed forever otherwise) and detects suspected local-store loss on
// best-effort durability tiers, forcing the next pull to start from epoch
// zero instead of trusting a partially-recovered snapshot.
package recovery

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/veridian-apps/ledgersync/internal/store"
)

// DefaultStaleThreshold is how long an entry may sit in syncing before it is
// considered orphaned by a crash. Longer than any per-call timeout.
const DefaultStaleThreshold = 5 * time.Minute

// Runner performs startup recovery against the engine's store.
type Runner struct {
	store          store.Store
	staleThreshold time.Duration
}

// NewRunner creates a recovery runner.
func NewRunner(st store.Store) *Runner {
	return &Runner{store: st, staleThreshold: DefaultStaleThreshold}
}

// RecoverStaleEntries requeues outbox entries stuck in syncing state.
// Should be called once at startup, before the first sync pass.
func (r *Runner) RecoverStaleEntries() error {
	staleBefore := time.Now().Add(-r.staleThreshold)
	n, err := r.store.RequeueStaleSyncing(staleBefore)
	if err != nil {
		return fmt.Errorf("requeue stale entries: %w", err)
	}
	if n > 0 {
		slog.Info("Runner.RecoverStaleEntries: requeued stale entries", "count", n)
	}
	return nil
}

// CheckLocalStoreLoss detects the platform having evicted a best-effort
// local store: sync cursors exist (the tenant has synced before) but the
// entity rows are gone. In that case the cursors are reset so the next pull
// re-fetches everything from epoch zero. A durable store never triggers this.
func (r *Runner) CheckLocalStoreLoss(tenantID string) (bool, error) {
	if r.store.DurabilityLevel() == store.DurabilityDurable {
		return false, nil
	}

	cursors, err := r.store.ListSyncCursors(tenantID)
	if err != nil {
		return false, fmt.Errorf("list cursors: %w", err)
	}
	if len(cursors) == 0 {
		// Never synced; a fresh install, not a loss.
		return false, nil
	}

	n, err := r.store.CountEntityRows(tenantID)
	if err != nil {
		return false, fmt.Errorf("count entity rows: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	slog.Warn("Runner.CheckLocalStoreLoss: suspected local store loss, forcing full re-pull", "tenantID", tenantID)
	if err := r.store.ResetSyncCursors(tenantID); err != nil {
		return false, fmt.Errorf("reset cursors: %w", err)
	}
	return true, nil
}
