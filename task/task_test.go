package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	data, err := Run(context.Background(), func() ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	_, err = Run(ctx, func() ([]byte, error) {
		ran = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestSpawn(t *testing.T) {
	ch := Spawn(context.Background(), func() ([]byte, error) {
		return []byte{1, 2, 3}, nil
	})

	data, err := Wait(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, open := <-ch
	assert.False(t, open)
}

func TestSpawnCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	r := <-Spawn(ctx, func() ([]byte, error) {
		atomic.StoreInt32(&ran, 1)
		return nil, nil
	})
	assert.ErrorIs(t, r.Err, context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&ran))
}

func TestWaitAbandons(t *testing.T) {
	release := make(chan struct{})
	ch := Spawn(context.Background(), func() ([]byte, error) {
		<-release
		return []byte("late"), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Wait(ctx, ch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	r := <-ch
	assert.Equal(t, []byte("late"), r.Data)
}

func TestPoolOrder(t *testing.T) {
	errOdd := errors.New("odd")

	var fns []Func
	for i := 0; i < 20; i++ {
		i := i
		fns = append(fns, func() ([]byte, error) {
			time.Sleep(time.Duration(20-i) * time.Millisecond / 10)
			if i%2 == 1 {
				return nil, errOdd
			}
			return []byte{byte(i)}, nil
		})
	}

	p := Pool{Workers: 4}
	results := p.Run(context.Background(), fns)
	require.Len(t, results, 20)
	for i, r := range results {
		if i%2 == 1 {
			assert.ErrorIs(t, r.Err, errOdd)
			continue
		}
		require.NoError(t, r.Err)
		assert.Equal(t, []byte{byte(i)}, r.Data)
	}
}

func TestPoolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	fns := make([]Func, 5)
	for i := range fns {
		fns[i] = func() ([]byte, error) {
			atomic.AddInt32(&ran, 1)
			return nil, nil
		}
	}

	p := Pool{}
	for _, r := range p.Run(ctx, fns) {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Zero(t, atomic.LoadInt32(&ran))
}
