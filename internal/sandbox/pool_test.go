package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAcquireRelease(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2)
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, PoolStats{Size: 2, Available: 2}, pool.Stats())

	rt, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Stats().InUse)

	_, err = rt.Eval(context.Background(), "dirty.js", "var dirty = true")
	require.NoError(t, err)
	id := rt.ID()

	require.NoError(t, pool.Release(rt))
	assert.Equal(t, 2, pool.Stats().Available)
	assert.NotEqual(t, id, rt.ID())

	var dirty goja.Value
	require.NoError(t, rt.With(func(vm *goja.Runtime) error {
		dirty = vm.Get("dirty")
		return nil
	}))
	assert.Nil(t, dirty)
}

func TestPoolRun(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 1)
	require.NoError(t, err)
	defer pool.Close()

	var got int64
	err = pool.Run(context.Background(), func(rt *Runtime) error {
		v, err := rt.Eval(context.Background(), "sum.js", "[1, 2, 3].reduce((a, b) => a + b)")
		if err != nil {
			return err
		}
		got = v.ToInteger()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)
}

func TestPoolAcquireTimeout(t *testing.T) {
	config := DefaultConfig()
	config.Timeout = 20 * time.Millisecond
	pool, err := NewPool(config, 1)
	require.NoError(t, err)
	defer pool.Close()

	rt, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(rt)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPoolClosed(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 1)
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.True(t, pool.Stats().Closed)
}
