package ports

import (
	"context"
	"encoding/json"
)

type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

func (m LockMode) String() string {
	if m == LockExclusive {
		return "exclusive"
	}
	return "shared"
}

type LockRequest struct {
	Key  string
	Mode LockMode
}

// ScopeLocker serializes mutations of QC scopes.
//
// Lock is called inside a unit of work. Locks are held until release is called,
// or until the surrounding transaction ends for transaction-scoped adapters.
// Callers call release after the transaction has committed or rolled back.
// A wait longer than the configured timeout fails with errs.ContentionError.
type ScopeLocker interface {
	Lock(ctx context.Context, requests ...LockRequest) (release func(), err error)
}

type AuditEvent struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	RunNumber int64           `json:"runNumber"`
	Scope     string          `json:"scope,omitempty"`
	FlagID    *int64          `json:"flagId,omitempty"`
	Actor     int64           `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt int64           `json:"createdAt"`
}

type AuditRepository interface {
	AppendAuditEvent(ctx context.Context, event AuditEvent) (AuditEvent, error)
	ListAuditEvents(ctx context.Context, runNumber int64, limit int) ([]AuditEvent, error)
}

// EventPublisher forwards committed audit events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event AuditEvent) error
}
