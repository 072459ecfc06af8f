package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Normalize([]string{"c", "a", "", "b", "a"}))
}

func TestKeyedLocker_SerializesOverlappingKeys(t *testing.T) {
	l := NewKeyedLocker(time.Second)
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "cost:item:loc", "doc:1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestKeyedLocker_TimesOutAsResourceBusy(t *testing.T) {
	l := NewKeyedLocker(20 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "invoice:1")
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(ctx, "invoice:2", "invoice:1")
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeResourceBusy, appErr.Code)

	// invoice:2 must have been released after the failed attempt.
	release2, err := l.Acquire(ctx, "invoice:2")
	require.NoError(t, err)
	release2()
}

func TestKeyedLocker_ReleaseIsIdempotent(t *testing.T) {
	l := NewKeyedLocker(time.Second)
	release, err := l.Acquire(context.Background(), "doc:1")
	require.NoError(t, err)
	release()
	release()

	release, err = l.Acquire(context.Background(), "doc:1")
	require.NoError(t, err)
	release()
}
