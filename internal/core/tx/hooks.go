package tx

import (
	"context"
	"sync"
)

// Hooks collects compensations for effects that live outside the transaction
// (an external journal entry, a published message). A Manager attaches one
// Hooks value to the outermost transaction.
type Hooks struct {
	mu         sync.Mutex
	onRollback []func(ctx context.Context)
}

type hooksKey struct{}

// WithHooks attaches a fresh Hooks to ctx.
func WithHooks(ctx context.Context) (context.Context, *Hooks) {
	h := &Hooks{}
	return context.WithValue(ctx, hooksKey{}, h), h
}

// HooksFrom returns the Hooks of the current transaction or nil.
func HooksFrom(ctx context.Context) *Hooks {
	if h, ok := ctx.Value(hooksKey{}).(*Hooks); ok {
		return h
	}
	return nil
}

// OnRollback registers fn to run if the current transaction rolls back.
// Returns false when ctx carries no transaction; callers must then
// compensate on their own.
func OnRollback(ctx context.Context, fn func(ctx context.Context)) bool {
	h := HooksFrom(ctx)
	if h == nil {
		return false
	}
	h.mu.Lock()
	h.onRollback = append(h.onRollback, fn)
	h.mu.Unlock()
	return true
}

// RunRollback executes registered hooks in reverse registration order.
func (h *Hooks) RunRollback(ctx context.Context) {
	h.mu.Lock()
	hooks := h.onRollback
	h.onRollback = nil
	h.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i](ctx)
	}
}
