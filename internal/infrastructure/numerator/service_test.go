package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "docflow/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences: args are (key) for strict
// and (key, increment) for range reservation.
type mockQuerier struct {
	mu    sync.Mutex
	vals  map[string]int64
	calls int
	err   error
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{vals: make(map[string]int64)}
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return &mockRow{err: m.err}
	}

	key := args[0].(string)
	var increment int64 = 1
	if len(args) == 2 {
		increment = args[1].(int64)
	}
	m.vals[key] += increment
	return &mockRow{val: m.vals[key]}
}

var period = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("ARI")

	num, err := svc.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "ARI-2026-00001", num)

	num, err = svc.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "ARI-2026-00002", num)

	num, err = svc.GetNextNumber(ctx, corenumerator.DefaultConfig("SO"), nil, period)
	require.NoError(t, err)
	assert.Equal(t, "SO-2026-00001", num)
}

func TestGetNextNumber_CachedReservesRanges(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("SHP")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 3}

	var got []string
	for range 4 {
		num, err := svc.GetNextNumber(ctx, cfg, opts, period)
		require.NoError(t, err)
		got = append(got, num)
	}

	assert.Equal(t, []string{"SHP-2026-00001", "SHP-2026-00002", "SHP-2026-00003", "SHP-2026-00004"}, got)
	assert.Equal(t, 2, q.calls)
}

func TestGetNextNumber_Concurrent(t *testing.T) {
	svc := New(newMockQuerier())
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("PO")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := svc.GetNextNumber(ctx, cfg, opts, period)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[num] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestGetNextNumber_Errors(t *testing.T) {
	q := newMockQuerier()
	q.err = errors.New("connection refused")
	svc := New(q)

	_, err := svc.GetNextNumber(context.Background(), corenumerator.DefaultConfig("API"), nil, period)
	assert.ErrorContains(t, err, "connection refused")

	_, err = svc.GetNextNumber(context.Background(), corenumerator.Config{}, nil, period)
	assert.Error(t, err)
}

func TestMemorySequence(t *testing.T) {
	seq := NewMemorySequence()
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("RCV")

	require.NoError(t, seq.SetNextNumber(ctx, cfg, period, 41))
	num, err := seq.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "RCV-2026-00042", num)
	assert.Equal(t, int64(42), ParseNumber(num))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"SO-00007", 7},
		{"ARI-2026-00123", 123},
		{"SO-2026-00000", 0},
		{"garbage", -1},
		{"SO-", -1},
		{"SO-2026-abc", -1},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseNumber(tt.in))
		})
	}
}
