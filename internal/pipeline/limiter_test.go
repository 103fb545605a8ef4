package pipeline_test

import (
	"sync"
	"testing"

	"github.com/kiranshivaraju/voicepipe/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_RejectsWhenFull(t *testing.T) {
	l := pipeline.NewLimiter(2)

	a, err := l.Acquire()
	require.NoError(t, err)
	_, err = l.Acquire()
	require.NoError(t, err)

	_, err = l.Acquire()
	assert.ErrorIs(t, err, pipeline.ErrCapacityExceeded)
	assert.Equal(t, 2, l.Active())

	a.Release()
	assert.Equal(t, 1, l.Active())

	_, err = l.Acquire()
	assert.NoError(t, err)
}

func TestLimiter_ReleaseIsIdempotent(t *testing.T) {
	l := pipeline.NewLimiter(1)

	s, err := l.Acquire()
	require.NoError(t, err)
	s.Release()
	s.Release()
	s.Release()

	assert.Equal(t, 0, l.Active())
}

func TestLimiter_MinimumOneSlot(t *testing.T) {
	l := pipeline.NewLimiter(0)
	assert.Equal(t, 1, l.Max())

	_, err := l.Acquire()
	require.NoError(t, err)
	_, err = l.Acquire()
	assert.ErrorIs(t, err, pipeline.ErrCapacityExceeded)
}

func TestLimiter_ConcurrentAcquireNeverExceedsMax(t *testing.T) {
	const max = 3
	l := pipeline.NewLimiter(max)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		slots []*pipeline.Slot
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s, err := l.Acquire(); err == nil {
				mu.Lock()
				slots = append(slots, s)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, slots, max)
	assert.Equal(t, max, l.Active())

	for _, s := range slots {
		s.Release()
	}
	assert.Equal(t, 0, l.Active())
}
