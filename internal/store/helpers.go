package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/veridian-apps/ledgersync/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner abstracts *sql.Row and *sql.Rows so scan helpers work for both.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanOutboxEntry scans an OutboxEntry from a row or rows cursor.
func scanOutboxEntry(row rowScanner) (models.OutboxEntry, error) {
	var e models.OutboxEntry
	var userID, payload, lastError sql.NullString
	var nextAttemptAt, syncedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.TenantID, &userID, &e.EntityType, &e.Action, &e.EntityID,
		&payload, &e.Status, &e.RetryCount, &lastError, &nextAttemptAt, &syncedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return e, err
	}
	e.UserID = userID.String
	e.Payload = payload.String
	e.LastError = lastError.String
	if nextAttemptAt.Valid {
		e.NextAttemptAt = &nextAttemptAt.Time
	}
	if syncedAt.Valid {
		e.SyncedAt = &syncedAt.Time
	}
	return e, nil
}

// outboxColumns is the select list matching scanOutboxEntry.
const outboxColumns = `id, tenant_id, user_id, entity_type, action, entity_id,
	payload, status, retry_count, last_error, next_attempt_at, synced_at,
	created_at, updated_at`

// scanEntityRow scans an EntityRow from a single row, returning a pointer.
func scanEntityRow(row rowScanner) (*models.EntityRow, error) {
	var r models.EntityRow
	var body sql.NullString
	err := row.Scan(&r.ID, &r.UpdatedAt, &r.Deleted, &body)
	if err != nil {
		return nil, err
	}
	if body.Valid {
		r.Body = json.RawMessage(body.String)
	}
	return &r, nil
}

// scanEntityRows scans an EntityRow from an iterating rows cursor.
func scanEntityRows(rows *sql.Rows) (models.EntityRow, error) {
	var r models.EntityRow
	var body sql.NullString
	err := rows.Scan(&r.ID, &r.UpdatedAt, &r.Deleted, &body)
	if err != nil {
		return r, fmt.Errorf("scan entity row failed: %w", err)
	}
	if body.Valid {
		r.Body = json.RawMessage(body.String)
	}
	return r, nil
}

// scanConflictRecord scans a ConflictRecord from a row or rows cursor.
func scanConflictRecord(row rowScanner) (models.ConflictRecord, error) {
	var c models.ConflictRecord
	var localBody, remoteBody sql.NullString
	err := row.Scan(&c.ID, &c.TenantID, &c.EntityType, &c.EntityID, &localBody, &remoteBody, &c.Resolved, &c.CreatedAt)
	if err != nil {
		return c, err
	}
	c.LocalBody = localBody.String
	c.RemoteBody = remoteBody.String
	return c, nil
}
