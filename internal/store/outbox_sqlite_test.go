package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "sqlite_sync_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	dbPath := filepath.Join(tempDir, "test.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(entityType, entityID string, action models.OutboxAction) *models.OutboxEntry {
	e := &models.OutboxEntry{
		TenantID:   "t1",
		UserID:     "u1",
		EntityType: entityType,
		Action:     action,
		EntityID:   entityID,
	}
	if action != models.OutboxActionDelete {
		e.Payload = `{"id":"` + entityID + `"}`
	}
	return e
}

func TestSQLiteStore_EnqueueAndListPending(t *testing.T) {
	s := newTestSQLiteStore(t)

	id1, err := s.EnqueueOutboxEntry(testEntry("invoice", "e1", models.OutboxActionCreate))
	if err != nil {
		t.Fatalf("EnqueueOutboxEntry failed: %v", err)
	}
	if id1 == "" {
		t.Fatal("EnqueueOutboxEntry returned empty ID")
	}
	time.Sleep(2 * time.Millisecond)
	id2, err := s.EnqueueOutboxEntry(testEntry("invoice", "e2", models.OutboxActionCreate))
	if err != nil {
		t.Fatalf("EnqueueOutboxEntry failed: %v", err)
	}

	entries, err := s.ListPendingOutboxEntries("t1", time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ListPendingOutboxEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 pending entries, got %d", len(entries))
	}
	// FIFO by created_at
	if entries[0].ID != id1 || entries[1].ID != id2 {
		t.Errorf("Expected FIFO order [%s %s], got [%s %s]", id1, id2, entries[0].ID, entries[1].ID)
	}
	if entries[0].Status != models.OutboxStatusPending {
		t.Errorf("Expected status pending, got %q", entries[0].Status)
	}
	if entries[0].Payload == "" {
		t.Error("Expected payload to round-trip")
	}
}

func TestSQLiteStore_EnqueueValidation(t *testing.T) {
	s := newTestSQLiteStore(t)

	e := testEntry("invoice", "e1", models.OutboxActionCreate)
	e.TenantID = ""
	if _, err := s.EnqueueOutboxEntry(e); err != models.ErrEmptyTenant {
		t.Errorf("Expected ErrEmptyTenant, got %v", err)
	}

	e = testEntry("invoice", "e1", models.OutboxActionCreate)
	e.Payload = ""
	if _, err := s.EnqueueOutboxEntry(e); err != models.ErrEmptyPayload {
		t.Errorf("Expected ErrEmptyPayload, got %v", err)
	}

	// Deletes carry no payload and must pass validation.
	if _, err := s.EnqueueOutboxEntry(testEntry("invoice", "e1", models.OutboxActionDelete)); err != nil {
		t.Errorf("Delete enqueue failed: %v", err)
	}
}

func TestSQLiteStore_MarkSyncingIsCompareAndSwap(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, err := s.EnqueueOutboxEntry(testEntry("invoice", "e1", models.OutboxActionCreate))
	if err != nil {
		t.Fatalf("EnqueueOutboxEntry failed: %v", err)
	}

	if err := s.MarkOutboxSyncing(id); err != nil {
		t.Fatalf("First MarkOutboxSyncing failed: %v", err)
	}
	// Second claim must lose the CAS.
	if err := s.MarkOutboxSyncing(id); err != models.ErrEntryNotClaimable {
		t.Errorf("Expected ErrEntryNotClaimable on second claim, got %v", err)
	}
}

func TestSQLiteStore_MarkSyncedClearsError(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, _ := s.EnqueueOutboxEntry(testEntry("invoice", "e1", models.OutboxActionCreate))
	if err := s.MarkOutboxSyncing(id); err != nil {
		t.Fatalf("MarkOutboxSyncing failed: %v", err)
	}
	if err := s.MarkOutboxSynced(id); err != nil {
		t.Fatalf("MarkOutboxSynced failed: %v", err)
	}

	n, err := s.CountOutboxEntries("t1", models.OutboxStatusSynced)
	if err != nil {
		t.Fatalf("CountOutboxEntries failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 synced entry, got %d", n)
	}
	if n, _ := s.CountOutboxEntries("t1", models.OutboxStatusPending); n != 0 {
		t.Errorf("Expected 0 pending entries, got %d", n)
	}
}

func TestSQLiteStore_FailRetryableRespectsBackoff(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, _ := s.EnqueueOutboxEntry(testEntry("invoice", "e1", models.OutboxActionCreate))
	s.MarkOutboxSyncing(id)

	next := time.Now().UTC().Add(time.Hour)
	if err := s.FailOutboxEntry(id, "connection refused", &next, false); err != nil {
		t.Fatalf("FailOutboxEntry failed: %v", err)
	}

	// Not due yet: excluded from the pending listing.
	entries, err := s.ListPendingOutboxEntries("t1", time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ListPendingOutboxEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("Expected 0 due entries, got %d", len(entries))
	}

	// Due once the clock passes next_attempt_at.
	entries, err = s.ListPendingOutboxEntries("t1", time.Now().UTC().Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("ListPendingOutboxEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 due entry, got %d", len(entries))
	}
	if entries[0].RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", entries[0].RetryCount)
	}
	if entries[0].LastError != "connection refused" {
		t.Errorf("Expected last error to be recorded, got %q", entries[0].LastError)
	}
}

func TestSQLiteStore_FailTerminalStaysFailed(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, _ := s.EnqueueOutboxEntry(testEntry("invoice", "e1", models.OutboxActionCreate))
	s.MarkOutboxSyncing(id)

	if err := s.FailOutboxEntry(id, "duplicate invoice number", nil, true); err != nil {
		t.Fatalf("FailOutboxEntry failed: %v", err)
	}

	entries, _ := s.ListPendingOutboxEntries("t1", time.Now().UTC().Add(time.Hour), 10)
	if len(entries) != 0 {
		t.Errorf("Terminal failure must not return to pending, got %d entries", len(entries))
	}

	failed, err := s.ListFailedOutboxEntries("t1", 10)
	if err != nil {
		t.Fatalf("ListFailedOutboxEntries failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("Expected 1 failed entry, got %d", len(failed))
	}
	if failed[0].LastError != "duplicate invoice number" {
		t.Errorf("Expected server message on failed entry, got %q", failed[0].LastError)
	}
}

func TestSQLiteStore_HasUnsyncedOutboxEntry(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, _ := s.EnqueueOutboxEntry(testEntry("invoice", "e1", models.OutboxActionUpdate))

	has, err := s.HasUnsyncedOutboxEntry("t1", "invoice", "e1")
	if err != nil {
		t.Fatalf("HasUnsyncedOutboxEntry failed: %v", err)
	}
	if !has {
		t.Error("Expected pending entry to count as unsynced")
	}

	s.MarkOutboxSyncing(id)
	s.MarkOutboxSynced(id)

	has, _ = s.HasUnsyncedOutboxEntry("t1", "invoice", "e1")
	if has {
		t.Error("Synced entry must not count as unsynced")
	}
	if has, _ := s.HasUnsyncedOutboxEntry("t1", "invoice", "other"); has {
		t.Error("Different entity must not count as unsynced")
	}

	// A terminally failed entry will never be pushed; it must not hold
	// remote changes for the entity back.
	failedID, _ := s.EnqueueOutboxEntry(testEntry("invoice", "e2", models.OutboxActionUpdate))
	s.MarkOutboxSyncing(failedID)
	s.FailOutboxEntry(failedID, "rejected", nil, true)
	if has, _ := s.HasUnsyncedOutboxEntry("t1", "invoice", "e2"); has {
		t.Error("Terminally failed entry must not count as unsynced")
	}
}

func TestSQLiteStore_HasEarlierUnsyncedEntry(t *testing.T) {
	s := newTestSQLiteStore(t)

	s.EnqueueOutboxEntry(testEntry("invoice", "e1", models.OutboxActionCreate))
	time.Sleep(2 * time.Millisecond)
	s.EnqueueOutboxEntry(testEntry("invoice", "e1", models.OutboxActionUpdate))

	entries, _ := s.ListPendingOutboxEntries("t1", time.Now().UTC(), 10)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	first, second := entries[0], entries[1]

	held, err := s.HasEarlierUnsyncedEntry("t1", "invoice", "e1", second.ID, second.CreatedAt)
	if err != nil {
		t.Fatalf("HasEarlierUnsyncedEntry failed: %v", err)
	}
	if !held {
		t.Error("Second entry should be held behind the first")
	}

	held, _ = s.HasEarlierUnsyncedEntry("t1", "invoice", "e1", first.ID, first.CreatedAt)
	if held {
		t.Error("First entry has no predecessor and must not be held")
	}

	// Once the first entry is synced the second is free to go.
	s.MarkOutboxSyncing(first.ID)
	s.MarkOutboxSynced(first.ID)
	held, _ = s.HasEarlierUnsyncedEntry("t1", "invoice", "e1", second.ID, second.CreatedAt)
	if held {
		t.Error("Second entry should be released after the first syncs")
	}
}

func TestSQLiteStore_RequeueStaleSyncing(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, _ := s.EnqueueOutboxEntry(testEntry("invoice", "e1", models.OutboxActionCreate))
	s.MarkOutboxSyncing(id)

	// Nothing is stale yet.
	n, err := s.RequeueStaleSyncing(time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("RequeueStaleSyncing failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 requeued, got %d", n)
	}

	// Everything claimed before the far-future threshold is stale.
	n, err = s.RequeueStaleSyncing(time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("RequeueStaleSyncing failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 requeued, got %d", n)
	}
	if c, _ := s.CountOutboxEntries("t1", models.OutboxStatusPending); c != 1 {
		t.Errorf("Expected entry back in pending, count %d", c)
	}
}

func TestSQLiteStore_PurgeSyncedOutboxEntries(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, _ := s.EnqueueOutboxEntry(testEntry("invoice", "e1", models.OutboxActionCreate))
	s.MarkOutboxSyncing(id)
	s.MarkOutboxSynced(id)

	n, err := s.PurgeSyncedOutboxEntries(time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("PurgeSyncedOutboxEntries failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 purged, got %d", n)
	}
	if c, _ := s.CountOutboxEntries("t1", models.OutboxStatusSynced); c != 0 {
		t.Errorf("Expected 0 synced after purge, got %d", c)
	}
}

func TestSQLiteStore_EnqueueTxRollback(t *testing.T) {
	s := newTestSQLiteStore(t)

	tx, err := s.BeginTx()
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if _, err := s.EnqueueOutboxEntryTx(tx, testEntry("invoice", "e1", models.OutboxActionCreate)); err != nil {
		t.Fatalf("EnqueueOutboxEntryTx failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	// A rolled-back domain write leaves no orphan outbox entry.
	if c, _ := s.CountOutboxEntries("t1", models.OutboxStatusPending); c != 0 {
		t.Errorf("Expected 0 entries after rollback, got %d", c)
	}

	tx, _ = s.BeginTx()
	s.EnqueueOutboxEntryTx(tx, testEntry("invoice", "e1", models.OutboxActionCreate))
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if c, _ := s.CountOutboxEntries("t1", models.OutboxStatusPending); c != 1 {
		t.Errorf("Expected 1 entry after commit, got %d", c)
	}
}
