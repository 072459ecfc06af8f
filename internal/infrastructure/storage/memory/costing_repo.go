package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/costing"
)

var _ costing.Repository = (*CostingRepo)(nil)

// CostingRepo stores cost layers and the movement ledger.
type CostingRepo struct {
	mu        sync.RWMutex
	layers    map[costing.Key]costing.Layer
	movements []costing.Movement
	seq       int64
}

// NewCostingRepo creates an empty costing store.
func NewCostingRepo() *CostingRepo {
	return &CostingRepo{layers: make(map[costing.Key]costing.Layer)}
}

func (r *CostingRepo) GetLayer(ctx context.Context, key costing.Key) (costing.Layer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.layers[key]; ok {
		return l, nil
	}
	return costing.Layer{ItemID: key.ItemID, LocationID: key.LocationID, AverageCost: decimal.Zero}, nil
}

// GetLayerForUpdate relies on the caller holding the layer lock key.
func (r *CostingRepo) GetLayerForUpdate(ctx context.Context, key costing.Key) (costing.Layer, error) {
	return r.GetLayer(ctx, key)
}

func (r *CostingRepo) SaveLayer(ctx context.Context, layer costing.Layer) error {
	key := costing.Key{ItemID: layer.ItemID, LocationID: layer.LocationID}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.layers[key]
	if existed && prev.Version != layer.Version {
		return apperror.NewConcurrentModification("cost_layer", key.LockKey())
	}
	layer.Version++
	r.layers[key] = layer

	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if existed {
			r.layers[key] = prev
		} else {
			delete(r.layers, key)
		}
	})
	return nil
}

func (r *CostingRepo) AppendMovements(ctx context.Context, movements []costing.Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := make(map[int64]struct{}, len(movements))
	for i := range movements {
		r.seq++
		movements[i].Seq = r.seq
		added[r.seq] = struct{}{}
		r.movements = append(r.movements, movements[i])
	}

	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.movements = slices.DeleteFunc(r.movements, func(m costing.Movement) bool {
			_, ok := added[m.Seq]
			return ok
		})
	})
	return nil
}

func (r *CostingRepo) MovementsByRecorder(ctx context.Context, recorderID id.ID) ([]costing.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []costing.Movement
	for _, m := range r.movements {
		if m.RecorderID == recorderID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *CostingRepo) DeleteMovementsByRecorder(ctx context.Context, recorderID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []costing.Movement
	r.movements = slices.DeleteFunc(r.movements, func(m costing.Movement) bool {
		if m.RecorderID == recorderID {
			removed = append(removed, m)
			return true
		}
		return false
	})

	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.movements = append(r.movements, removed...)
		slices.SortFunc(r.movements, func(a, b costing.Movement) int {
			return cmp.Compare(a.Seq, b.Seq)
		})
	})
	return nil
}

func (r *CostingRepo) Movements(ctx context.Context, key costing.Key) ([]costing.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []costing.Movement
	for _, m := range r.movements {
		if m.Key() == key {
			out = append(out, m)
		}
	}
	return out, nil
}
