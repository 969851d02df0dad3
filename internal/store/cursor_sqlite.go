package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
)

// Compile-time check that SQLiteStore implements CursorRepo.
var _ CursorRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) GetSyncCursor(tenantID, entityType string) (models.SyncCursor, error) {
	c := models.SyncCursor{TenantID: tenantID, EntityType: entityType}
	var lastPulledAt, lastSyncedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT last_pulled_at, last_synced_at FROM sync_cursor WHERE tenant_id = ? AND entity_type = ?`,
		tenantID, entityType,
	).Scan(&lastPulledAt, &lastSyncedAt)
	if err == sql.ErrNoRows {
		// Lazily created: an absent cursor means an epoch-zero watermark.
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

func (s *SQLiteStore) SetSyncCursor(tenantID, entityType string, lastPulledAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_cursor (tenant_id, entity_type, last_pulled_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (tenant_id, entity_type) DO UPDATE SET last_pulled_at = excluded.last_pulled_at`,
		tenantID, entityType, lastPulledAt,
	)
	if err != nil {
		return fmt.Errorf("set sync cursor failed: %w", err)
	}
	slog.Debug("SQLiteStore.SetSyncCursor", "tenantID", tenantID, "entityType", entityType, "lastPulledAt", lastPulledAt)
	return nil
}

func (s *SQLiteStore) SetLastSyncedAt(tenantID, entityType string, t time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_cursor (tenant_id, entity_type, last_synced_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (tenant_id, entity_type) DO UPDATE SET last_synced_at = excluded.last_synced_at`,
		tenantID, entityType, t,
	)
	if err != nil {
		return fmt.Errorf("set last synced at failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSyncCursors(tenantID string) ([]models.SyncCursor, error) {
	rows, err := s.db.Query(
		`SELECT tenant_id, entity_type, last_pulled_at, last_synced_at FROM sync_cursor WHERE tenant_id = ?`,
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

func (s *SQLiteStore) ResetSyncCursors(tenantID string) error {
	_, err := s.db.Exec(`DELETE FROM sync_cursor WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("reset sync cursors failed: %w", err)
	}
	slog.Info("SQLiteStore.ResetSyncCursors: cursors reset to epoch zero", "tenantID", tenantID)
	return nil
}
