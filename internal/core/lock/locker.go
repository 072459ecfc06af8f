// Package lock serializes access to named resources (documents, cost layers,
// source lines, invoice balances) for the duration of a lifecycle transition.
package lock

import (
	"context"
	"sort"
	"sync"
	"time"

	"docflow/internal/core/apperror"
)

// Release frees every key obtained by a single Acquire call.
type Release func()

// Locker acquires exclusive ownership of a set of keys.
//
// Keys are always taken in sorted order so two callers contending for
// overlapping sets cannot deadlock. Acquire returns a RESOURCE_BUSY AppError
// when the keys cannot be obtained before the timeout or ctx expires.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (Release, error)
}

// Normalize sorts keys and drops duplicates and empty strings.
func Normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KeyedLocker is an in-process Locker backed by one channel per held key.
type KeyedLocker struct {
	mu      sync.Mutex
	held    map[string]chan struct{}
	timeout time.Duration
}

// NewKeyedLocker creates an in-process locker. A zero timeout waits until ctx is done.
func NewKeyedLocker(timeout time.Duration) *KeyedLocker {
	return &KeyedLocker{
		held:    make(map[string]chan struct{}),
		timeout: timeout,
	}
}

// Acquire implements Locker.
func (l *KeyedLocker) Acquire(ctx context.Context, keys ...string) (Release, error) {
	keys = Normalize(keys)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	acquired := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := l.acquireOne(ctx, key); err != nil {
			l.release(acquired)
			return nil, apperror.NewResourceBusy(keys).WithCause(err)
		}
		acquired = append(acquired, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(acquired) })
	}, nil
}

func (l *KeyedLocker) acquireOne(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *KeyedLocker) release(keys []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(keys) - 1; i >= 0; i-- {
		if ch, ok := l.held[keys[i]]; ok {
			close(ch)
			delete(l.held, keys[i])
		}
	}
}

var _ Locker = (*KeyedLocker)(nil)
