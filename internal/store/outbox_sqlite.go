package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
	"github.com/veridian-apps/ledgersync/internal/util"
)

// Compile-time check that SQLiteStore implements OutboxRepo.
var _ OutboxRepo = (*SQLiteStore)(nil)

// execer abstracts *sql.DB and *sql.Tx for the enqueue path.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLiteStore) EnqueueOutboxEntry(entry *models.OutboxEntry) (string, error) {
	return enqueueOutboxEntrySQLite(s.db, entry)
}

func (s *SQLiteStore) EnqueueOutboxEntryTx(tx *sql.Tx, entry *models.OutboxEntry) (string, error) {
	return enqueueOutboxEntrySQLite(tx, entry)
}

func enqueueOutboxEntrySQLite(db execer, entry *models.OutboxEntry) (string, error) {
	if err := entry.Validate(); err != nil {
		return "", err
	}
	id := util.GenerateOutboxID()
	now := time.Now().UTC()

	_, err := db.Exec(
		`INSERT INTO outbox (id, tenant_id, user_id, entity_type, action, entity_id, payload, status, retry_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?, ?)`,
		id, entry.TenantID, nilIfEmpty(entry.UserID), entry.EntityType, entry.Action,
		entry.EntityID, nilIfEmpty(entry.Payload), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue outbox entry failed: %w", err)
	}
	entry.ID = id
	entry.Status = models.OutboxStatusPending
	entry.CreatedAt = now
	entry.UpdatedAt = now
	slog.Debug("SQLiteStore.EnqueueOutboxEntry", "id", id, "tenantID", entry.TenantID, "entityType", entry.EntityType, "action", entry.Action)
	return id, nil
}

func (s *SQLiteStore) ListPendingOutboxEntries(tenantID string, now time.Time, limit int) ([]models.OutboxEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+outboxColumns+`
		 FROM outbox
		 WHERE tenant_id = ? AND status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		tenantID, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox entries failed: %w", err)
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		e, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry failed: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending outbox iteration failed: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) MarkOutboxSyncing(id string) error {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`UPDATE outbox SET status = 'syncing', updated_at = ? WHERE id = ? AND status = 'pending'`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox syncing failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox syncing rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrEntryNotClaimable
	}
	return nil
}

func (s *SQLiteStore) MarkOutboxSynced(id string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE outbox SET status = 'synced', synced_at = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox synced failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailOutboxEntry(id string, errMsg string, nextAttemptAt *time.Time, terminal bool) error {
	now := time.Now().UTC()
	status := "pending"
	if terminal {
		status = "failed"
	}
	_, err := s.db.Exec(
		`UPDATE outbox SET status = ?, retry_count = retry_count + 1, last_error = ?, next_attempt_at = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, nextAttemptAt, now, id,
	)
	if err != nil {
		return fmt.Errorf("fail outbox entry failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountOutboxEntries(tenantID string, status models.OutboxStatus) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM outbox WHERE tenant_id = ? AND status = ?`,
		tenantID, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outbox entries failed: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListFailedOutboxEntries(tenantID string, limit int) ([]models.OutboxEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+outboxColumns+`
		 FROM outbox WHERE tenant_id = ? AND status = 'failed'
		 ORDER BY updated_at DESC LIMIT ?`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list failed outbox entries failed: %w", err)
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		e, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry failed: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed outbox iteration failed: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) HasUnsyncedOutboxEntry(tenantID, entityType, entityID string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM outbox
		 WHERE tenant_id = ? AND entity_type = ? AND entity_id = ? AND status IN ('pending', 'syncing')`,
		tenantID, entityType, entityID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("unsynced outbox check failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) HasEarlierUnsyncedEntry(tenantID, entityType, entityID, excludeID string, before time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM outbox
		 WHERE tenant_id = ? AND entity_type = ? AND entity_id = ? AND id != ?
		   AND status IN ('pending', 'syncing', 'failed') AND created_at < ?`,
		tenantID, entityType, entityID, excludeID, before,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("earlier unsynced check failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) RequeueStaleSyncing(staleBefore time.Time) (int, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`UPDATE outbox SET status = 'pending', updated_at = ? WHERE status = 'syncing' AND updated_at < ?`,
		now, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale syncing entries failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleSyncing", "requeued", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) PurgeSyncedOutboxEntries(olderThan time.Time) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM outbox WHERE status = 'synced' AND synced_at < ?`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("purge synced outbox entries failed: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
