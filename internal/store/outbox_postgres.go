package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
	"github.com/veridian-apps/ledgersync/internal/util"
)

// Compile-time check that PostgresStore implements OutboxRepo.
var _ OutboxRepo = (*PostgresStore)(nil)

func (s *PostgresStore) EnqueueOutboxEntry(entry *models.OutboxEntry) (string, error) {
	return enqueueOutboxEntryPostgres(s.db, entry)
}

func (s *PostgresStore) EnqueueOutboxEntryTx(tx *sql.Tx, entry *models.OutboxEntry) (string, error) {
	return enqueueOutboxEntryPostgres(tx, entry)
}

func enqueueOutboxEntryPostgres(db execer, entry *models.OutboxEntry) (string, error) {
	if err := entry.Validate(); err != nil {
		return "", err
	}
	id := util.GenerateOutboxID()
	now := time.Now().UTC()

	_, err := db.Exec(
		`INSERT INTO outbox (id, tenant_id, user_id, entity_type, action, entity_id, payload, status, retry_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 0, $8, $9)`,
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
	slog.Debug("PostgresStore.EnqueueOutboxEntry", "id", id, "tenantID", entry.TenantID, "entityType", entry.EntityType, "action", entry.Action)
	return id, nil
}

func (s *PostgresStore) ListPendingOutboxEntries(tenantID string, now time.Time, limit int) ([]models.OutboxEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+outboxColumns+`
		 FROM outbox
		 WHERE tenant_id = $1 AND status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		 ORDER BY created_at ASC LIMIT $3`,
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

func (s *PostgresStore) MarkOutboxSyncing(id string) error {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`UPDATE outbox SET status = 'syncing', updated_at = $1 WHERE id = $2 AND status = 'pending'`,
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

func (s *PostgresStore) MarkOutboxSynced(id string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE outbox SET status = 'synced', synced_at = $1, last_error = NULL, updated_at = $2 WHERE id = $3`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox synced failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailOutboxEntry(id string, errMsg string, nextAttemptAt *time.Time, terminal bool) error {
	now := time.Now().UTC()
	status := "pending"
	if terminal {
		status = "failed"
	}
	_, err := s.db.Exec(
		`UPDATE outbox SET status = $1, retry_count = retry_count + 1, last_error = $2, next_attempt_at = $3, updated_at = $4 WHERE id = $5`,
		status, errMsg, nextAttemptAt, now, id,
	)
	if err != nil {
		return fmt.Errorf("fail outbox entry failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountOutboxEntries(tenantID string, status models.OutboxStatus) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM outbox WHERE tenant_id = $1 AND status = $2`,
		tenantID, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outbox entries failed: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListFailedOutboxEntries(tenantID string, limit int) ([]models.OutboxEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+outboxColumns+`
		 FROM outbox WHERE tenant_id = $1 AND status = 'failed'
		 ORDER BY updated_at DESC LIMIT $2`,
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

func (s *PostgresStore) HasUnsyncedOutboxEntry(tenantID, entityType, entityID string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM outbox
		 WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND status IN ('pending', 'syncing')`,
		tenantID, entityType, entityID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("unsynced outbox check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) HasEarlierUnsyncedEntry(tenantID, entityType, entityID, excludeID string, before time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM outbox
		 WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND id != $4
		   AND status IN ('pending', 'syncing', 'failed') AND created_at < $5`,
		tenantID, entityType, entityID, excludeID, before,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("earlier unsynced check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) RequeueStaleSyncing(staleBefore time.Time) (int, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`UPDATE outbox SET status = 'pending', updated_at = $1 WHERE status = 'syncing' AND updated_at < $2`,
		now, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale syncing entries failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleSyncing", "requeued", n)
	}
	return int(n), nil
}

func (s *PostgresStore) PurgeSyncedOutboxEntries(olderThan time.Time) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM outbox WHERE status = 'synced' AND synced_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("purge synced outbox entries failed: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
