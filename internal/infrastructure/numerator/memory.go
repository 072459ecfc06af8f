package numerator

import (
	"context"
	"sync"
	"time"

	corenumerator "docflow/internal/core/numerator"
)

var _ corenumerator.Generator = (*MemorySequence)(nil)

// MemorySequence numbers documents from in-process counters.
// Used when no database is configured.
type MemorySequence struct {
	mu   sync.Mutex
	vals map[string]int64
}

// NewMemorySequence creates an empty sequence set.
func NewMemorySequence() *MemorySequence {
	return &MemorySequence{vals: make(map[string]int64)}
}

func (m *MemorySequence) GetNextNumber(ctx context.Context, cfg corenumerator.Config, opts *corenumerator.Options, period time.Time) (string, error) {
	key := corenumerator.SequenceKey(cfg, period)

	m.mu.Lock()
	m.vals[key]++
	n := m.vals[key]
	m.mu.Unlock()

	return corenumerator.Format(cfg, period, n), nil
}

func (m *MemorySequence) SetNextNumber(ctx context.Context, cfg corenumerator.Config, period time.Time, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[corenumerator.SequenceKey(cfg, period)] = value
	return nil
}
