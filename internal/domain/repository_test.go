package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookRegistry_RunStopsOnError(t *testing.T) {
	r := NewHookRegistry[*int]()
	calls := 0
	r.OnBeforePost(func(ctx context.Context, v *int) error {
		calls++
		*v = 42
		return nil
	})
	r.OnBeforePost(func(ctx context.Context, v *int) error {
		calls++
		return errors.New("rejected")
	})
	r.OnBeforePost(func(ctx context.Context, v *int) error {
		calls++
		return nil
	})

	v := 0
	err := r.Run(context.Background(), BeforePost, &v)
	assert.EqualError(t, err, "rejected")
	assert.Equal(t, 2, calls)
	assert.Equal(t, 42, v)

	assert.NoError(t, r.Run(context.Background(), AfterPost, &v))
}

func TestListFilter_Normalize(t *testing.T) {
	f := ListFilter{Limit: 10_000, Offset: -3}
	f.Normalize()
	assert.Equal(t, 500, f.Limit)
	assert.Equal(t, 0, f.Offset)
	assert.Equal(t, "-date", f.OrderBy)
}
