// Package audit defines the audit trail contract of document transitions.
package audit

import (
	"context"
	"time"

	"docflow/internal/core/id"
)

// Action represents the type of audited operation.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionApprove   Action = "approve"
	ActionUnapprove Action = "unapprove"
	ActionPost      Action = "post"
	ActionUnpost    Action = "unpost"
)

// Record is one audit trail entry. Actor is taken from context when empty.
type Record struct {
	EntityType string
	EntityID   id.ID
	Action     Action
	Actor      string
	Changes    map[string]any
	At         time.Time
}

// Logger writes audit records inside the caller's transaction.
type Logger interface {
	Record(ctx context.Context, rec Record) error
}
