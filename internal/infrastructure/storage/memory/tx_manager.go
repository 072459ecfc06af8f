// Package memory provides in-process repositories for development and tests.
// Writes register undo closures with the active transaction, so a failed
// RunInTransaction restores every store it touched.
package memory

import (
	"context"
	"sync"

	coretx "docflow/internal/core/tx"
	"docflow/pkg/logger"
)

var _ coretx.ReadOnlyManager = (*TxManager)(nil)

// TxManager implements tx.Manager with an undo log.
type TxManager struct{}

// NewTxManager creates a memory transaction manager.
func NewTxManager() *TxManager {
	return &TxManager{}
}

type txKey struct{}

type memTx struct {
	mu   sync.Mutex
	undo []func()
}

// RunInTransaction executes fn; on error every recorded undo runs in reverse.
// Nested calls reuse the outer transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(ctx)
	}

	t := &memTx{}
	txCtx := context.WithValue(ctx, txKey{}, t)
	txCtx, hooks := coretx.WithHooks(txCtx)

	if err := fn(txCtx); err != nil {
		t.rollback()
		hooks.RunRollback(context.WithoutCancel(ctx))
		logger.Debug(ctx, "memory transaction rolled back", "error", err)
		return err
	}
	return nil
}

// ReadOnly executes fn without an undo log.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (t *memTx) rollback() {
	t.mu.Lock()
	undo := t.undo
	t.undo = nil
	t.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// recordUndo registers fn with the transaction in ctx. Outside a
// transaction writes are final and nothing is recorded.
func recordUndo(ctx context.Context, fn func()) {
	t, ok := ctx.Value(txKey{}).(*memTx)
	if !ok {
		return
	}
	t.mu.Lock()
	t.undo = append(t.undo, fn)
	t.mu.Unlock()
}
