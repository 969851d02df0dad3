package resolver

import (
	"testing"
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
)

func row(updatedAt time.Time) *models.EntityRow {
	return &models.EntityRow{ID: "e1", UpdatedAt: updatedAt, Body: []byte(`{"id":"e1"}`)}
}

func TestLastWriteWins_RemoteNewer(t *testing.T) {
	r := NewLastWriteWins()
	t1 := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(5 * time.Minute)

	result, err := r.Resolve(models.ConflictContext{
		EntityType: "invoice",
		EntityID:   "e1",
		Local:      row(t1),
		Remote:     *row(t2),
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Use != models.ConflictUseRemote {
		t.Errorf("Expected remote to win, got %q", result.Use)
	}
}

func TestLastWriteWins_LocalNewer(t *testing.T) {
	r := NewLastWriteWins()
	t1 := time.Date(2024, 1, 2, 10, 5, 0, 0, time.UTC)
	t2 := t1.Add(-5 * time.Minute)

	result, err := r.Resolve(models.ConflictContext{
		EntityType: "invoice",
		EntityID:   "e1",
		Local:      row(t1),
		Remote:     *row(t2),
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Use != models.ConflictUseLocal {
		t.Errorf("Expected local to win, got %q", result.Use)
	}
}

func TestLastWriteWins_RemoteWinsTie(t *testing.T) {
	r := NewLastWriteWins()
	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	result, err := r.Resolve(models.ConflictContext{
		EntityType: "invoice",
		EntityID:   "e1",
		Local:      row(ts),
		Remote:     *row(ts),
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Use != models.ConflictUseRemote {
		t.Errorf("Expected remote to win tie, got %q", result.Use)
	}
}

func TestLastWriteWins_LocalAbsent(t *testing.T) {
	r := NewLastWriteWins()

	result, err := r.Resolve(models.ConflictContext{
		EntityType: "invoice",
		EntityID:   "e1",
		Local:      nil,
		Remote:     *row(time.Now()),
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Use != models.ConflictUseRemote {
		t.Errorf("Expected remote for absent local, got %q", result.Use)
	}
}

func TestManualMerge_FlagsReview(t *testing.T) {
	r := NewManualMerge()
	ts := time.Now()

	result, err := r.Resolve(models.ConflictContext{
		EntityType: "invoice",
		EntityID:   "e1",
		Local:      row(ts),
		Remote:     *row(ts.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.NeedsManualReview {
		t.Error("Expected NeedsManualReview to be set")
	}
	if result.Use != models.ConflictUseLocal {
		t.Errorf("Expected local as safe default, got %q", result.Use)
	}
}

func TestManualMerge_PullOnlyRowIsNotConflict(t *testing.T) {
	r := NewManualMerge()

	result, err := r.Resolve(models.ConflictContext{
		EntityType: "invoice",
		EntityID:   "e1",
		Local:      nil,
		Remote:     *row(time.Now()),
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.NeedsManualReview {
		t.Error("Pull-only row should not need review")
	}
	if result.Use != models.ConflictUseRemote {
		t.Errorf("Expected remote, got %q", result.Use)
	}
}
