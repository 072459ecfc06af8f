package memory

import (
	"context"
	"sync"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/fulfillment"
)

var _ fulfillment.Repository = (*FulfillmentRepo)(nil)

// FulfillmentRepo stores fulfillment counters per source document.
type FulfillmentRepo struct {
	mu       sync.RWMutex
	counters map[id.ID][]fulfillment.Counter
}

// NewFulfillmentRepo creates an empty counter store.
func NewFulfillmentRepo() *FulfillmentRepo {
	return &FulfillmentRepo{counters: make(map[id.ID][]fulfillment.Counter)}
}

func (r *FulfillmentRepo) CreateCounters(ctx context.Context, counters []fulfillment.Counter) error {
	if len(counters) == 0 {
		return nil
	}
	sourceID := counters[0].SourceDocumentID

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.counters[sourceID]
	stored := make([]fulfillment.Counter, len(counters))
	for i, c := range counters {
		c.Version = 1
		stored[i] = c
	}
	r.counters[sourceID] = stored

	recordUndo(ctx, func() { r.restore(sourceID, prev, existed) })
	return nil
}

func (r *FulfillmentRepo) DeleteCounters(ctx context.Context, sourceID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.counters[sourceID]
	delete(r.counters, sourceID)

	recordUndo(ctx, func() { r.restore(sourceID, prev, existed) })
	return nil
}

func (r *FulfillmentRepo) Counters(ctx context.Context, sourceID id.ID) ([]fulfillment.Counter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]fulfillment.Counter(nil), r.counters[sourceID]...), nil
}

// GetForUpdate relies on the caller holding the line lock key.
func (r *FulfillmentRepo) GetForUpdate(ctx context.Context, sourceID, lineID id.ID) (fulfillment.Counter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.counters[sourceID] {
		if c.SourceLineID == lineID {
			return c, nil
		}
	}
	return fulfillment.Counter{}, apperror.NewNotFound("fulfillment_counter", lineID.String())
}

func (r *FulfillmentRepo) UpdateFulfilled(ctx context.Context, counter fulfillment.Counter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.counters[counter.SourceDocumentID]
	for i, c := range list {
		if c.SourceLineID != counter.SourceLineID {
			continue
		}
		if c.Version != counter.Version {
			return apperror.NewConcurrentModification("fulfillment_counter", counter.SourceLineID.String())
		}
		prev := c
		counter.Version++
		list[i] = counter

		recordUndo(ctx, func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for j, cur := range r.counters[prev.SourceDocumentID] {
				if cur.SourceLineID == prev.SourceLineID {
					r.counters[prev.SourceDocumentID][j] = prev
				}
			}
		})
		return nil
	}
	return apperror.NewNotFound("fulfillment_counter", counter.SourceLineID.String())
}

func (r *FulfillmentRepo) restore(sourceID id.ID, prev []fulfillment.Counter, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existed {
		r.counters[sourceID] = prev
	} else {
		delete(r.counters, sourceID)
	}
}
