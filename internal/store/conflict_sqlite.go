package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
	"github.com/veridian-apps/ledgersync/internal/util"
)

// Compile-time check that SQLiteStore implements ConflictRepo.
var _ ConflictRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) RecordConflict(rec models.ConflictRecord) (string, error) {
	var existingID string
	err := s.db.QueryRow(
		`SELECT id FROM conflicts WHERE tenant_id = ? AND entity_type = ? AND entity_id = ? AND resolved = 0`,
		rec.TenantID, rec.EntityType, rec.EntityID,
	).Scan(&existingID)
	if err == nil {
		slog.Debug("SQLiteStore.RecordConflict: open conflict exists", "id", existingID, "entityType", rec.EntityType, "entityID", rec.EntityID)
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("conflict dedupe check failed: %w", err)
	}

	id := rec.ID
	if id == "" {
		id = util.GenerateConflictID()
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO conflicts (id, tenant_id, entity_type, entity_id, local_body, remote_body, resolved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		id, rec.TenantID, rec.EntityType, rec.EntityID, nilIfEmpty(rec.LocalBody), nilIfEmpty(rec.RemoteBody), now,
	)
	if err != nil {
		return "", fmt.Errorf("record conflict failed: %w", err)
	}
	slog.Debug("SQLiteStore.RecordConflict", "id", id, "entityType", rec.EntityType, "entityID", rec.EntityID)
	return id, nil
}

func (s *SQLiteStore) ListOpenConflicts(tenantID string, limit int) ([]models.ConflictRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, entity_type, entity_id, local_body, remote_body, resolved, created_at
		 FROM conflicts WHERE tenant_id = ? AND resolved = 0
		 ORDER BY created_at ASC LIMIT ?`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list open conflicts failed: %w", err)
	}
	defer rows.Close()

	var recs []models.ConflictRecord
	for rows.Next() {
		c, err := scanConflictRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict record failed: %w", err)
		}
		recs = append(recs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("open conflicts iteration failed: %w", err)
	}
	return recs, nil
}

func (s *SQLiteStore) ResolveConflict(id string) error {
	_, err := s.db.Exec(`UPDATE conflicts SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("resolve conflict failed: %w", err)
	}
	return nil
}
