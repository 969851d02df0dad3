// Package models defines the core data structures for LedgerSync.
//
// It includes the outbox entry, sync cursor, and conflict types shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"time"
)

// OutboxStatus represents the lifecycle state of an outbox entry.
type OutboxStatus string

const (
	// OutboxStatusPending marks an entry awaiting its next push attempt.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusSyncing marks an entry claimed by an in-flight push.
	OutboxStatusSyncing OutboxStatus = "syncing"
	// OutboxStatusSynced marks an entry confirmed by the remote store.
	OutboxStatusSynced OutboxStatus = "synced"
	// OutboxStatusFailed marks an entry whose push failed; terminal failures
	// stay failed and are surfaced, retryable ones return to pending.
	OutboxStatusFailed OutboxStatus = "failed"
)

// OutboxAction identifies the kind of local mutation an outbox entry carries.
type OutboxAction string

const (
	OutboxActionCreate OutboxAction = "create"
	OutboxActionUpdate OutboxAction = "update"
	OutboxActionDelete OutboxAction = "delete"
)

// Validation constants
const (
	// MaxPayloadLength defines the maximum serialized payload size accepted at enqueue time.
	MaxPayloadLength = 1 << 20
	// MaxEntityTypeLength bounds the entity type key.
	MaxEntityTypeLength = 64
)

// Error variables for better error handling and testability
var (
	ErrEmptyTenant       = errors.New("tenant id cannot be empty")
	ErrEmptyEntityType   = errors.New("entity type cannot be empty")
	ErrEntityTypeTooLong = errors.New("entity type exceeds maximum length")
	ErrEmptyEntityID     = errors.New("entity id cannot be empty")
	ErrInvalidAction     = errors.New("invalid outbox action")
	ErrEmptyPayload      = errors.New("payload is required for create and update actions")
	ErrPayloadTooLarge   = errors.New("payload exceeds maximum length")
	ErrEntryNotFound     = errors.New("outbox entry not found")
	ErrEntryNotClaimable = errors.New("outbox entry is not claimable")
)

// IsValidAction checks if the given outbox action is supported.
func IsValidAction(a OutboxAction) bool {
	switch a {
	case OutboxActionCreate, OutboxActionUpdate, OutboxActionDelete:
		return true
	default:
		return false
	}
}

// OutboxEntry represents one durable pending local mutation.
type OutboxEntry struct {
	ID            string       `json:"id"`
	TenantID      string       `json:"tenant_id"`
	UserID        string       `json:"user_id"`
	EntityType    string       `json:"entity_type"`
	Action        OutboxAction `json:"action"`
	EntityID      string       `json:"entity_id"`
	Payload       string       `json:"payload,omitempty"`
	Status        OutboxStatus `json:"status"`
	RetryCount    int          `json:"retry_count"`
	LastError     string       `json:"last_error,omitempty"`
	NextAttemptAt *time.Time   `json:"next_attempt_at,omitempty"`
	SyncedAt      *time.Time   `json:"synced_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Validate performs validation on an entry before it is enqueued.
func (e *OutboxEntry) Validate() error {
	if e.TenantID == "" {
		return ErrEmptyTenant
	}
	if e.EntityType == "" {
		return ErrEmptyEntityType
	}
	if len(e.EntityType) > MaxEntityTypeLength {
		return ErrEntityTypeTooLong
	}
	if e.EntityID == "" {
		return ErrEmptyEntityID
	}
	if !IsValidAction(e.Action) {
		return ErrInvalidAction
	}
	switch e.Action {
	case OutboxActionCreate, OutboxActionUpdate:
		if e.Payload == "" {
			return ErrEmptyPayload
		}
		if len(e.Payload) > MaxPayloadLength {
			return ErrPayloadTooLarge
		}
	case OutboxActionDelete:
		// Deletes carry no payload.
	}
	return nil
}

// SyncCursor tracks the incremental pull watermark for one tenant and entity type.
type SyncCursor struct {
	TenantID     string    `json:"tenant_id"`
	EntityType   string    `json:"entity_type"`
	LastPulledAt time.Time `json:"last_pulled_at"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// EntityRow is the engine-side view of a domain row: an opaque JSON body plus
// the three fields the engine interprets (id, updated_at, deleted).
type EntityRow struct {
	ID        string          `json:"id"`
	UpdatedAt time.Time       `json:"updated_at"`
	Deleted   bool            `json:"deleted,omitempty"`
	Body      json.RawMessage `json:"body"`
}

// ChangeSet is the decoded incremental pull response. UpdatedAt is the
// server-reported snapshot time and becomes the next cursor watermark.
type ChangeSet struct {
	Since     time.Time              `json:"since"`
	UpdatedAt time.Time              `json:"updated_at"`
	Entities  map[string][]EntityRow `json:"entities"`
}

// ConflictContext carries the local and remote versions of one entity for
// resolution. Local is nil when the entity does not exist locally.
type ConflictContext struct {
	EntityType string
	EntityID   string
	Local      *EntityRow
	Remote     EntityRow
}

// ConflictChoice identifies which side of a conflict wins.
type ConflictChoice string

const (
	ConflictUseLocal  ConflictChoice = "local"
	ConflictUseRemote ConflictChoice = "remote"
	ConflictUseMerged ConflictChoice = "merged"
)

// ConflictResult is a resolver's decision. Merged is set only when Use is
// ConflictUseMerged. NeedsManualReview flags the row for the review surface.
type ConflictResult struct {
	Use               ConflictChoice
	Merged            *EntityRow
	NeedsManualReview bool
}

// ConflictRecord is a persisted manual-review item awaiting a user decision.
type ConflictRecord struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	LocalBody  string    `json:"local_body,omitempty"`
	RemoteBody string    `json:"remote_body"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"created_at"`
}

// SyncReport summarizes one completed sync pass for diagnostics.
type SyncReport struct {
	TenantID      string        `json:"tenant_id"`
	Pushed        int           `json:"pushed"`
	PushFailed    int           `json:"push_failed"`
	PushSkipped   int           `json:"push_skipped"`
	Pulled        int           `json:"pulled"`
	PullSkipped   int           `json:"pull_skipped"`
	Conflicts     int           `json:"conflicts"`
	CursorMovedTo time.Time     `json:"cursor_moved_to"`
	Duration      time.Duration `json:"duration"`
}
