// Package engine implements the sync orchestrator, upstream pusher and
// downstream puller for the offline-first replication of local data against
// the multi-tenant cloud store.
//
// A sync pass always runs the pusher to completion before the puller, so a
// just-pushed local edit is never clobbered by a stale pull. Passes are
// single-flight per tenant: connectivity flapping and manual triggers never
// pile up concurrent passes.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veridian-apps/ledgersync/internal/connectivity"
	"github.com/veridian-apps/ledgersync/internal/models"
	"github.com/veridian-apps/ledgersync/internal/resolver"
	"github.com/veridian-apps/ledgersync/internal/store"
)

// ErrSyncInFlight is returned when a pass for the tenant is already running.
// The caller gets no queued retrigger; the running pass covers its intent.
var ErrSyncInFlight = errors.New("sync pass already in flight for tenant")

// Config holds the collaborators and tuning for NewEngine. Uses a struct
// because the engine has too many dependencies for positional parameters.
type Config struct {
	Store    store.Store
	Remote   RemoteStore
	Resolver resolver.Resolver // defaults to last-write-wins
	Monitor  *connectivity.Monitor

	// DeviceID identifies this install to the cloud store. Generated when
	// empty and should then be persisted by the caller.
	DeviceID string

	BatchSize   int
	MaxRetries  int
	BackoffBase time.Duration
}

// Engine is the sync engine's surface to the rest of the application.
type Engine struct {
	store    store.Store
	pusher   *Pusher
	puller   *Puller
	monitor  *connectivity.Monitor
	deviceID string

	mu       sync.Mutex
	inFlight map[string]bool
	cancel   context.CancelFunc
	events   <-chan connectivity.Event
	wg       sync.WaitGroup

	sessionCh chan string
}

// New creates the engine. The conflict resolver is fixed at construction;
// swapping strategies is a boot-time decision.
func New(cfg Config) *Engine {
	res := cfg.Resolver
	if res == nil {
		res = resolver.NewLastWriteWins()
	}
	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
		slog.Info("engine.New: generated device id", "deviceID", deviceID)
	}

	pusher := NewPusher(cfg.Store, cfg.Store, cfg.Remote)
	if cfg.BatchSize > 0 {
		pusher.batchSize = cfg.BatchSize
	}
	if cfg.MaxRetries > 0 {
		pusher.maxRetries = cfg.MaxRetries
	}
	if cfg.BackoffBase > 0 {
		pusher.backoffBase = cfg.BackoffBase
	}

	return &Engine{
		store:     cfg.Store,
		pusher:    pusher,
		puller:    NewPuller(cfg.Store, cfg.Remote, res),
		monitor:   cfg.Monitor,
		deviceID:  deviceID,
		inFlight:  make(map[string]bool),
		sessionCh: make(chan string, 4),
	}
}

// DeviceID returns the identity this install presents to the cloud store.
func (e *Engine) DeviceID() string {
	return e.deviceID
}

// RunSyncOnce performs one full sync pass for the tenant: upstream push to
// completion, then downstream pull. Phase failures are recorded in the
// report and logged, not thrown; only a second in-flight call errors, with
// ErrSyncInFlight and no network I/O.
func (e *Engine) RunSyncOnce(ctx context.Context, tenantID string) (models.SyncReport, error) {
	report := models.SyncReport{TenantID: tenantID}
	if !e.tryAcquire(tenantID) {
		return report, ErrSyncInFlight
	}
	defer e.release(tenantID)

	start := time.Now()
	slog.Info("Engine.RunSyncOnce: pass starting", "tenantID", tenantID)

	if err := e.pusher.Run(ctx, tenantID, &report); err != nil {
		slog.Error("Engine.RunSyncOnce: push phase failed", "tenantID", tenantID, "error", err)
	}
	if err := e.puller.Run(ctx, tenantID, &report); err != nil {
		slog.Error("Engine.RunSyncOnce: pull phase failed", "tenantID", tenantID, "error", err)
	}

	report.Duration = time.Since(start)
	slog.Info("Engine.RunSyncOnce: pass finished",
		"tenantID", tenantID, "pushed", report.Pushed, "pushFailed", report.PushFailed,
		"pulled", report.Pulled, "conflicts", report.Conflicts, "duration", report.Duration)
	return report, nil
}

// Start launches the background trigger loop for the tenant: connectivity
// online events and session-established notifications both invoke a pass.
func (e *Engine) Start(tenantID string) {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		slog.Warn("Engine.Start: already started")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	var events <-chan connectivity.Event
	if e.monitor != nil {
		events = e.monitor.Subscribe()
	}
	e.events = events
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		slog.Info("Engine.Start: trigger loop running", "tenantID", tenantID)
		for {
			select {
			case <-ctx.Done():
				slog.Info("Engine.Start: trigger loop stopping", "tenantID", tenantID)
				return
			case ev := <-events:
				if ev.State != connectivity.StateOnline {
					continue
				}
				e.trigger(ctx, tenantID, "connectivity")
			case tid := <-e.sessionCh:
				if tid != tenantID {
					continue
				}
				e.trigger(ctx, tenantID, "session")
			}
		}
	}()
}

// Stop halts scheduling of new passes. Safe to call mid-flight: the current
// pass completes on its own per-call timeouts; nothing is interrupted.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	events := e.events
	e.events = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
	if e.monitor != nil && events != nil {
		e.monitor.Unsubscribe(events)
	}
	slog.Info("Engine.Stop: trigger loop stopped")
}

// NotifySessionEstablished triggers a pass when a user session comes up.
func (e *Engine) NotifySessionEstablished(tenantID string) {
	select {
	case e.sessionCh <- tenantID:
	default:
	}
}

// PendingCount reports outbox entries awaiting push, for UI badges.
func (e *Engine) PendingCount(tenantID string) (int, error) {
	return e.store.CountOutboxEntries(tenantID, models.OutboxStatusPending)
}

// FailedCount reports terminally failed entries needing user attention.
func (e *Engine) FailedCount(tenantID string) (int, error) {
	return e.store.CountOutboxEntries(tenantID, models.OutboxStatusFailed)
}

// FailedEntries lists terminally failed entries for the attention surface.
func (e *Engine) FailedEntries(tenantID string, limit int) ([]models.OutboxEntry, error) {
	return e.store.ListFailedOutboxEntries(tenantID, limit)
}

// OpenConflicts lists unresolved manual-merge conflicts.
func (e *Engine) OpenConflicts(tenantID string, limit int) ([]models.ConflictRecord, error) {
	return e.store.ListOpenConflicts(tenantID, limit)
}

// Enqueue records a local mutation in the outbox. Domain writers that manage
// their own transaction should use the store's EnqueueOutboxEntryTx instead
// so the write and its outbox entry commit atomically.
func (e *Engine) Enqueue(entry *models.OutboxEntry) (string, error) {
	return e.store.EnqueueOutboxEntry(entry)
}

// EnqueueValue marshals a payload value and records the mutation.
func (e *Engine) EnqueueValue(tenantID, userID, entityType string, action models.OutboxAction, entityID string, payload interface{}) (string, error) {
	var body string
	if payload != nil {
		var err error
		body, err = marshalPayload(payload)
		if err != nil {
			return "", err
		}
	}
	return e.store.EnqueueOutboxEntry(&models.OutboxEntry{
		TenantID:   tenantID,
		UserID:     userID,
		EntityType: entityType,
		Action:     action,
		EntityID:   entityID,
		Payload:    body,
	})
}

// trigger runs a pass from the background loop, swallowing the in-flight
// case (the running pass covers the trigger's intent).
func (e *Engine) trigger(ctx context.Context, tenantID, reason string) {
	slog.Debug("Engine.trigger", "tenantID", tenantID, "reason", reason)
	if _, err := e.RunSyncOnce(ctx, tenantID); err != nil && err != ErrSyncInFlight {
		slog.Error("Engine.trigger: pass failed", "tenantID", tenantID, "reason", reason, "error", err)
	}
}

func (e *Engine) tryAcquire(tenantID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[tenantID] {
		return false
	}
	e.inFlight[tenantID] = true
	return true
}

func (e *Engine) release(tenantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, tenantID)
}
