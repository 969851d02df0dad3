package models

import (
	"strings"
	"testing"
)

func validEntry() *OutboxEntry {
	return &OutboxEntry{
		TenantID:   "t1",
		UserID:     "u1",
		EntityType: "invoice",
		Action:     OutboxActionUpdate,
		EntityID:   "i1",
		Payload:    `{"id":"i1"}`,
	}
}

func TestOutboxEntry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*OutboxEntry)
		wantErr error
	}{
		{"valid update", func(e *OutboxEntry) {}, nil},
		{"valid create", func(e *OutboxEntry) { e.Action = OutboxActionCreate }, nil},
		{"valid delete without payload", func(e *OutboxEntry) {
			e.Action = OutboxActionDelete
			e.Payload = ""
		}, nil},
		{"missing tenant", func(e *OutboxEntry) { e.TenantID = "" }, ErrEmptyTenant},
		{"missing entity type", func(e *OutboxEntry) { e.EntityType = "" }, ErrEmptyEntityType},
		{"entity type too long", func(e *OutboxEntry) {
			e.EntityType = strings.Repeat("x", MaxEntityTypeLength+1)
		}, ErrEntityTypeTooLong},
		{"missing entity id", func(e *OutboxEntry) { e.EntityID = "" }, ErrEmptyEntityID},
		{"unknown action", func(e *OutboxEntry) { e.Action = "upsert" }, ErrInvalidAction},
		{"create without payload", func(e *OutboxEntry) {
			e.Action = OutboxActionCreate
			e.Payload = ""
		}, ErrEmptyPayload},
		{"update without payload", func(e *OutboxEntry) { e.Payload = "" }, ErrEmptyPayload},
		{"payload too large", func(e *OutboxEntry) {
			e.Payload = strings.Repeat("a", MaxPayloadLength+1)
		}, ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEntry()
			tt.mutate(e)
			if err := e.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsValidAction(t *testing.T) {
	for _, a := range []OutboxAction{OutboxActionCreate, OutboxActionUpdate, OutboxActionDelete} {
		if !IsValidAction(a) {
			t.Errorf("Expected %q to be valid", a)
		}
	}
	for _, a := range []OutboxAction{"", "upsert", "CREATE"} {
		if IsValidAction(a) {
			t.Errorf("Expected %q to be invalid", a)
		}
	}
}
