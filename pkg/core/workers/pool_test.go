package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunKeepsIndexOrder(t *testing.T) {
	p, err := NewPool("test", 3, nil)
	require.NoError(t, err)
	defer p.Release()

	out := make([]int, 10)
	errs := p.Run(context.Background(), len(out), func(_ context.Context, i int) error {
		out[i] = i * i
		if i == 7 {
			return errors.New("seven")
		}
		return nil
	})
	require.Len(t, errs, 10)
	assert.Equal(t, []int{0, 1, 4, 9, 16, 25, 36, 49, 64, 81}, out)
	assert.EqualError(t, errs[7], "seven")
	assert.EqualError(t, FirstError(errs), "seven")

	st := p.Stats()
	assert.EqualValues(t, 10, st.Submitted)
	assert.EqualValues(t, 9, st.Completed)
	assert.EqualValues(t, 1, st.Failed)
}

func TestRunRecoversPanics(t *testing.T) {
	p, err := NewPool("panics", 2, nil)
	require.NoError(t, err)
	defer p.Release()

	errs := p.Run(context.Background(), 2, func(_ context.Context, i int) error {
		if i == 1 {
			panic("boom")
		}
		return nil
	})
	assert.NoError(t, errs[0])
	assert.ErrorContains(t, errs[1], "boom")
	assert.EqualValues(t, 1, p.Stats().Panics)
}

func TestRunCancelled(t *testing.T) {
	p, err := NewPool("cancel", 1, nil)
	require.NoError(t, err)
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	errs := p.Run(ctx, 3, func(context.Context, int) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestReleasedPool(t *testing.T) {
	p, err := NewPool("closed", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, p.Cap())
	p.Release()
	p.Release()

	errs := p.Run(context.Background(), 2, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, errs[0], ErrPoolClosed)
	assert.NoError(t, FirstError(nil))
}
