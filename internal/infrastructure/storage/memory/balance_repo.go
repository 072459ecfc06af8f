package memory

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/allocation"
	"docflow/internal/domain/document"
)

var _ allocation.Repository = (*BalanceRepo)(nil)

// BalanceRepo stores open invoice balances.
type BalanceRepo struct {
	mu       sync.RWMutex
	balances map[id.ID]allocation.Balance
}

// NewBalanceRepo creates an empty balance store.
func NewBalanceRepo() *BalanceRepo {
	return &BalanceRepo{balances: make(map[id.ID]allocation.Balance)}
}

func (r *BalanceRepo) Open(ctx context.Context, b allocation.Balance) error {
	b.Version = 1
	r.put(ctx, b.InvoiceID, &b)
	return nil
}

func (r *BalanceRepo) Close(ctx context.Context, invoiceID id.ID) error {
	r.put(ctx, invoiceID, nil)
	return nil
}

func (r *BalanceRepo) Get(ctx context.Context, invoiceID id.ID) (allocation.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.balances[invoiceID]
	if !ok {
		return allocation.Balance{}, apperror.NewNotFound("invoice_balance", invoiceID.String())
	}
	return b, nil
}

// GetForUpdate relies on the caller holding the invoice lock key.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, invoiceID id.ID) (allocation.Balance, error) {
	return r.Get(ctx, invoiceID)
}

func (r *BalanceRepo) UpdateOutstanding(ctx context.Context, b allocation.Balance) error {
	r.mu.RLock()
	cur, ok := r.balances[b.InvoiceID]
	r.mu.RUnlock()
	if !ok {
		return apperror.NewNotFound("invoice_balance", b.InvoiceID.String())
	}
	if cur.Version != b.Version {
		return apperror.NewConcurrentModification("invoice_balance", b.InvoiceID.String())
	}
	b.Version++
	r.put(ctx, b.InvoiceID, &b)
	return nil
}

func (r *BalanceRepo) ListOpen(ctx context.Context, partnerID *id.ID, kind document.Kind) ([]allocation.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []allocation.Balance
	for _, b := range r.balances {
		if partnerID != nil && b.PartnerID != *partnerID {
			continue
		}
		if kind != "" && b.Kind != kind {
			continue
		}
		if !b.Outstanding.IsPositive() {
			continue
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b allocation.Balance) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return bytes.Compare(a.InvoiceID[:], b.InvoiceID[:])
	})
	return out, nil
}

// put stores b (or deletes when nil) and records the undo.
func (r *BalanceRepo) put(ctx context.Context, invoiceID id.ID, b *allocation.Balance) {
	r.mu.Lock()
	prev, existed := r.balances[invoiceID]
	if b == nil {
		delete(r.balances, invoiceID)
	} else {
		r.balances[invoiceID] = *b
	}
	r.mu.Unlock()

	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if existed {
			r.balances[invoiceID] = prev
		} else {
			delete(r.balances, invoiceID)
		}
	})
}
