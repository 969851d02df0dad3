package store

import (
	"testing"
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
)

func TestSQLiteStore_EntityRowRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	updatedAt := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	row := models.EntityRow{ID: "e1", UpdatedAt: updatedAt, Body: []byte(`{"id":"e1","total":42}`)}

	if err := s.UpsertEntityRow("t1", "invoice", row); err != nil {
		t.Fatalf("UpsertEntityRow failed: %v", err)
	}

	got, err := s.GetEntityRow("t1", "invoice", "e1")
	if err != nil {
		t.Fatalf("GetEntityRow failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetEntityRow returned nil")
	}
	if got.ID != "e1" || !got.UpdatedAt.Equal(updatedAt) {
		t.Errorf("Row fields wrong: %+v", got)
	}
	if string(got.Body) != `{"id":"e1","total":42}` {
		t.Errorf("Body did not round-trip: %s", got.Body)
	}
}

func TestSQLiteStore_GetEntityRowMissingIsNil(t *testing.T) {
	s := newTestSQLiteStore(t)

	got, err := s.GetEntityRow("t1", "invoice", "nope")
	if err != nil {
		t.Fatalf("GetEntityRow failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing row, got %+v", got)
	}
}

func TestSQLiteStore_UpsertIsIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)

	row := models.EntityRow{ID: "e1", UpdatedAt: time.Now().UTC(), Body: []byte(`{"id":"e1"}`)}
	if err := s.UpsertEntityRow("t1", "invoice", row); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}
	if err := s.UpsertEntityRow("t1", "invoice", row); err != nil {
		t.Fatalf("Re-applying the same row must be harmless: %v", err)
	}
	if n, _ := s.CountEntityRows("t1"); n != 1 {
		t.Errorf("Expected 1 row, got %d", n)
	}
}

func TestSQLiteStore_DeleteEntityRow(t *testing.T) {
	s := newTestSQLiteStore(t)

	row := models.EntityRow{ID: "e1", UpdatedAt: time.Now().UTC(), Body: []byte(`{"id":"e1"}`)}
	s.UpsertEntityRow("t1", "invoice", row)

	if err := s.DeleteEntityRow("t1", "invoice", "e1"); err != nil {
		t.Fatalf("DeleteEntityRow failed: %v", err)
	}
	if got, _ := s.GetEntityRow("t1", "invoice", "e1"); got != nil {
		t.Error("Row should be gone after delete")
	}
	// Deleting a missing row is not an error.
	if err := s.DeleteEntityRow("t1", "invoice", "e1"); err != nil {
		t.Errorf("Deleting missing row should succeed: %v", err)
	}
}

func TestSQLiteStore_ListEntityRowsChangedSince(t *testing.T) {
	s := newTestSQLiteStore(t)

	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s.UpsertEntityRow("t1", "invoice", models.EntityRow{ID: "old", UpdatedAt: base, Body: []byte(`{}`)})
	s.UpsertEntityRow("t1", "invoice", models.EntityRow{ID: "new", UpdatedAt: base.Add(time.Hour), Body: []byte(`{}`)})

	rows, err := s.ListEntityRowsChangedSince("t1", "invoice", base)
	if err != nil {
		t.Fatalf("ListEntityRowsChangedSince failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "new" {
		t.Errorf("Expected only the newer row, got %+v", rows)
	}
}

func TestSQLiteStore_DurabilityLevel(t *testing.T) {
	s := newTestSQLiteStore(t)
	if s.DurabilityLevel() != DurabilityDurable {
		t.Errorf("Default durability should be durable, got %q", s.DurabilityLevel())
	}
}

func TestSQLiteStore_ConflictRecordDedupe(t *testing.T) {
	s := newTestSQLiteStore(t)

	rec := models.ConflictRecord{
		TenantID:   "t1",
		EntityType: "invoice",
		EntityID:   "e1",
		LocalBody:  `{"id":"e1","v":1}`,
		RemoteBody: `{"id":"e1","v":2}`,
	}
	id1, err := s.RecordConflict(rec)
	if err != nil {
		t.Fatalf("RecordConflict failed: %v", err)
	}

	// Same open conflict returns the existing record.
	id2, err := s.RecordConflict(rec)
	if err != nil {
		t.Fatalf("RecordConflict failed: %v", err)
	}
	if id2 != id1 {
		t.Errorf("Expected dedupe to return %s, got %s", id1, id2)
	}

	open, err := s.ListOpenConflicts("t1", 10)
	if err != nil {
		t.Fatalf("ListOpenConflicts failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("Expected 1 open conflict, got %d", len(open))
	}

	if err := s.ResolveConflict(id1); err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}
	if open, _ := s.ListOpenConflicts("t1", 10); len(open) != 0 {
		t.Errorf("Expected 0 open conflicts after resolve, got %d", len(open))
	}

	// A new conflict after resolution is a new record.
	id3, _ := s.RecordConflict(rec)
	if id3 == id1 {
		t.Error("Expected new record after previous conflict resolved")
	}
}
