package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
	"github.com/veridian-apps/ledgersync/internal/util"
)

// Compile-time checks that PostgresStore implements CursorRepo and ConflictRepo.
var (
	_ CursorRepo   = (*PostgresStore)(nil)
	_ ConflictRepo = (*PostgresStore)(nil)
)

func (s *PostgresStore) GetSyncCursor(tenantID, entityType string) (models.SyncCursor, error) {
	c := models.SyncCursor{TenantID: tenantID, EntityType: entityType}
	var lastPulledAt, lastSyncedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT last_pulled_at, last_synced_at FROM sync_cursor WHERE tenant_id = $1 AND entity_type = $2`,
		tenantID, entityType,
	).Scan(&lastPulledAt, &lastSyncedAt)
	if err == sql.ErrNoRows {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("get sync cursor failed: %w", err)
	}
	if lastPulledAt.Valid {
		c.LastPulledAt = lastPulledAt.Time
	}
	if lastSyncedAt.Valid {
		c.LastSyncedAt = lastSyncedAt.Time
	}
	return c, nil
}

func (s *PostgresStore) SetSyncCursor(tenantID, entityType string, lastPulledAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_cursor (tenant_id, entity_type, last_pulled_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, entity_type) DO UPDATE SET last_pulled_at = excluded.last_pulled_at`,
		tenantID, entityType, lastPulledAt,
	)
	if err != nil {
		return fmt.Errorf("set sync cursor failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetLastSyncedAt(tenantID, entityType string, t time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_cursor (tenant_id, entity_type, last_synced_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, entity_type) DO UPDATE SET last_synced_at = excluded.last_synced_at`,
		tenantID, entityType, t,
	)
	if err != nil {
		return fmt.Errorf("set last synced at failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSyncCursors(tenantID string) ([]models.SyncCursor, error) {
	rows, err := s.db.Query(
		`SELECT tenant_id, entity_type, last_pulled_at, last_synced_at FROM sync_cursor WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync cursors failed: %w", err)
	}
	defer rows.Close()

	var cursors []models.SyncCursor
	for rows.Next() {
		var c models.SyncCursor
		var lastPulledAt, lastSyncedAt sql.NullTime
		if err := rows.Scan(&c.TenantID, &c.EntityType, &lastPulledAt, &lastSyncedAt); err != nil {
			return nil, fmt.Errorf("scan sync cursor failed: %w", err)
		}
		if lastPulledAt.Valid {
			c.LastPulledAt = lastPulledAt.Time
		}
		if lastSyncedAt.Valid {
			c.LastSyncedAt = lastSyncedAt.Time
		}
		cursors = append(cursors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync cursor iteration failed: %w", err)
	}
	return cursors, nil
}

func (s *PostgresStore) ResetSyncCursors(tenantID string) error {
	_, err := s.db.Exec(`DELETE FROM sync_cursor WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("reset sync cursors failed: %w", err)
	}
	slog.Info("PostgresStore.ResetSyncCursors: cursors reset to epoch zero", "tenantID", tenantID)
	return nil
}

func (s *PostgresStore) RecordConflict(rec models.ConflictRecord) (string, error) {
	var existingID string
	err := s.db.QueryRow(
		`SELECT id FROM conflicts WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND resolved = FALSE`,
		rec.TenantID, rec.EntityType, rec.EntityID,
	).Scan(&existingID)
	if err == nil {
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
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`,
		id, rec.TenantID, rec.EntityType, rec.EntityID, nilIfEmpty(rec.LocalBody), nilIfEmpty(rec.RemoteBody), now,
	)
	if err != nil {
		return "", fmt.Errorf("record conflict failed: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListOpenConflicts(tenantID string, limit int) ([]models.ConflictRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, entity_type, entity_id, local_body, remote_body, resolved, created_at
		 FROM conflicts WHERE tenant_id = $1 AND resolved = FALSE
		 ORDER BY created_at ASC LIMIT $2`,
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

func (s *PostgresStore) ResolveConflict(id string) error {
	_, err := s.db.Exec(`UPDATE conflicts SET resolved = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("resolve conflict failed: %w", err)
	}
	return nil
}
