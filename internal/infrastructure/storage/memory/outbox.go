package memory

import (
	"context"
	"slices"
	"sync"

	"docflow/internal/core/security"
	"docflow/internal/domain"
	"docflow/internal/domain/audit"
)

var (
	_ domain.EventPublisher = (*Outbox)(nil)
	_ audit.Logger          = (*AuditTrail)(nil)
)

// Outbox keeps published events; rolled-back transactions drop theirs.
type Outbox struct {
	mu     sync.Mutex
	seq    int64
	events []outboxEntry
}

type outboxEntry struct {
	seq   int64
	event domain.DomainEvent
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Publish(ctx context.Context, event domain.DomainEvent) error {
	o.mu.Lock()
	o.seq++
	seq := o.seq
	o.events = append(o.events, outboxEntry{seq: seq, event: event})
	o.mu.Unlock()

	recordUndo(ctx, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.events = slices.DeleteFunc(o.events, func(e outboxEntry) bool { return e.seq == seq })
	})
	return nil
}

// Events returns a copy of all stored events.
func (o *Outbox) Events() []domain.DomainEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.DomainEvent, len(o.events))
	for i, e := range o.events {
		out[i] = e.event
	}
	return out
}

// AuditTrail keeps audit records in memory.
type AuditTrail struct {
	mu      sync.Mutex
	records []*audit.Record
}

// NewAuditTrail creates an empty audit trail.
func NewAuditTrail() *AuditTrail {
	return &AuditTrail{}
}

func (a *AuditTrail) Record(ctx context.Context, rec audit.Record) error {
	if rec.Actor == "" {
		rec.Actor = security.GetActor(ctx)
	}

	stored := &rec
	a.mu.Lock()
	a.records = append(a.records, stored)
	a.mu.Unlock()

	recordUndo(ctx, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.records = slices.DeleteFunc(a.records, func(r *audit.Record) bool { return r == stored })
	})
	return nil
}

// Records returns a copy of all stored records.
func (a *AuditTrail) Records() []audit.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.Record, len(a.records))
	for i, r := range a.records {
		out[i] = *r
	}
	return out
}
