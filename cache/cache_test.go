package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrComputeCachesWithinTTL(t *testing.T) {
	c := New()
	var calls atomic.Int32
	compute := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "value", nil
	}

	v, hit, err := c.GetOrCompute(context.Background(), 1, time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.False(t, hit)

	v, hit, err = c.GetOrCompute(context.Background(), 1, time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.True(t, hit)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrComputeExpiry(t *testing.T) {
	c := New()
	now := time.Now()
	c.now = func() time.Time { return now }

	var calls atomic.Int32
	compute := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return calls.Load(), nil
	}

	_, _, err := c.GetOrCompute(context.Background(), 1, time.Minute, compute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	v, hit, err := c.GetOrCompute(context.Background(), 1, time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), v)
}

func TestGetOrComputeCoalescesConcurrent(t *testing.T) {
	c := New()
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const n = 8
	var wg sync.WaitGroup
	hits := make([]bool, n)
	values := make([]any, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, hit, err := c.GetOrCompute(context.Background(), 42, time.Minute, compute)
			assert.NoError(t, err)
			values[i] = v
			hits[i] = hit
		}(i)
	}

	// Let all goroutines reach the cache before releasing the leader.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "exactly one compute per key")
	leaders := 0
	for i := 0; i < n; i++ {
		assert.Equal(t, "shared", values[i])
		if !hits[i] {
			leaders++
		}
	}
	assert.Equal(t, 1, leaders, "exactly one caller computes")
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New()
	var calls atomic.Int32
	compute := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("upstream down")
		}
		return "recovered", nil
	}

	_, _, err := c.GetOrCompute(context.Background(), 1, time.Minute, compute)
	require.Error(t, err)

	v, hit, err := c.GetOrCompute(context.Background(), 1, time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "recovered", v)
}

func TestGetOrComputeZeroTTLCoalescesWithoutStoring(t *testing.T) {
	c := New()
	var calls atomic.Int32
	compute := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "fresh", nil
	}

	_, _, err := c.GetOrCompute(context.Background(), 1, 0, compute)
	require.NoError(t, err)
	_, hit, err := c.GetOrCompute(context.Background(), 1, 0, compute)
	require.NoError(t, err)

	assert.False(t, hit)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestGetOrComputeWaiterContextCancel(t *testing.T) {
	c := New()
	release := make(chan struct{})
	compute := func(ctx context.Context) (any, error) {
		<-release
		return "slow", nil
	}

	go c.GetOrCompute(context.Background(), 1, time.Minute, compute) //nolint:errcheck
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.GetOrCompute(ctx, 1, time.Minute, compute)
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}

func TestInvalidate(t *testing.T) {
	c := New()
	c.Put(1, "v", time.Minute)
	c.Invalidate(1)
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestRefStoreFetch(t *testing.T) {
	s := NewRefStore(time.Minute)
	items := []any{
		map[string]any{"title": "Alien", "year": 1979, "rating": 8.5},
		map[string]any{"title": "Aliens", "year": 1986, "rating": 8.4},
		map[string]any{"title": "Alien 3", "year": 1992, "rating": 6.4},
	}
	id := s.Store(items)

	page, total, err := s.Fetch(id, 1, 1, []string{"title"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, map[string]any{"title": "Aliens"}, page[0])

	full, total, err := s.Fetch(id, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, full, 3)
}

func TestRefStoreExpiry(t *testing.T) {
	s := NewRefStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	id := s.Store([]any{"a"})
	now = now.Add(2 * time.Minute)

	_, _, err := s.Fetch(id, 0, 0, nil)
	assert.Error(t, err)
}

func TestRefStoreUnknownRef(t *testing.T) {
	s := NewRefStore(time.Minute)
	_, _, err := s.Fetch("ref_missing", 0, 0, nil)
	assert.Error(t, err)
}
