package domain

import (
	"context"

	"docflow/internal/core/id"
)

// Event types emitted by document transitions.
const (
	EventDocumentCreated    = "DocumentCreated"
	EventDocumentUpdated    = "DocumentUpdated"
	EventDocumentDeleted    = "DocumentDeleted"
	EventDocumentApproved   = "DocumentApproved"
	EventDocumentUnapproved = "DocumentUnapproved"
	EventDocumentPosted     = "DocumentPosted"
	EventDocumentUnposted   = "DocumentUnposted"
	EventDocumentClosed     = "DocumentClosed"
	EventDocumentReopened   = "DocumentReopened"
)

// DomainEvent represents an event to be published via the transactional outbox.
type DomainEvent struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// EventPublisher stores events within the current transaction.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}
