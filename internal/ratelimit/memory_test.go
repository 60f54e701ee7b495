package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func at(ms int64) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	assert.NotNil(t, store)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_PruneAndCount_UnknownKey(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	assert.Equal(t, 0, store.PruneAndCount("missing", time.Second, at(0)))
	assert.Equal(t, 0, store.Len(), "counting must not create a bucket")
}

func TestMemoryStore_PruneAndCount_DropsExpiredPrefix(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	store.Push("k", at(0))
	store.Push("k", at(5000))
	store.Push("k", at(9000))

	assert.Equal(t, 3, store.PruneAndCount("k", 10*time.Second, at(10000)), "entry exactly at the boundary is kept")
	assert.Equal(t, 2, store.PruneAndCount("k", 10*time.Second, at(10001)))

	oldest, ok := store.Oldest("k")
	require.True(t, ok)
	assert.Equal(t, at(5000), oldest)

	assert.Equal(t, 0, store.PruneAndCount("k", 10*time.Second, at(60000)))
	_, ok = store.Oldest("k")
	assert.False(t, ok)
}

func TestMemoryStore_Take(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		w, err := store.Take(ctx, "k", 10*time.Second, 3, at(int64(i)*1000))
		require.NoError(t, err)
		assert.Equal(t, i, w.Count)
		assert.True(t, w.Recorded)
	}

	w, err := store.Take(ctx, "k", 10*time.Second, 3, at(5000))
	require.NoError(t, err)
	assert.Equal(t, 3, w.Count)
	assert.False(t, w.Recorded)
	assert.Equal(t, at(0), w.Oldest)

	assert.Equal(t, 3, store.PruneAndCount("k", 10*time.Second, at(5000)), "denied take must not record")
}

func TestMemoryStore_Take_ZeroLimitNeverRecords(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	w, err := store.Take(context.Background(), "k", time.Second, 0, at(0))
	require.NoError(t, err)
	assert.False(t, w.Recorded)
	assert.True(t, w.Oldest.IsZero())
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_DifferentKeys(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.Take(ctx, "key1", time.Minute, 1, at(0))
	require.NoError(t, err)
	w, err := store.Take(ctx, "key1", time.Minute, 1, at(1))
	require.NoError(t, err)
	assert.False(t, w.Recorded, "key1 should be exhausted")

	w, err = store.Take(ctx, "key2", time.Minute, 1, at(1))
	require.NoError(t, err)
	assert.True(t, w.Recorded, "key2 should be independent")
}

func TestMemoryStore_Reset(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	store.Push("a", at(0))
	store.Push("b", at(0))
	require.Equal(t, 2, store.Len())

	require.NoError(t, store.Reset(context.Background()))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, store.PruneAndCount("a", time.Hour, at(1)))
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore(WithIdleTTL(time.Minute))
	defer store.Close()

	store.Push("idle", at(0))
	store.Push("busy", at(0))
	store.Push("busy", at(50000))

	removed := store.Sweep(at(90000))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	_, ok := store.Oldest("busy")
	assert.True(t, ok)
}

func TestMemoryStore_Sweep_IdleTTLFuncReadPerSweep(t *testing.T) {
	ttl := time.Minute
	store := NewMemoryStore(WithIdleTTLFunc(func() time.Duration { return ttl }))
	defer store.Close()

	store.Push("k", at(0))

	ttl = time.Hour
	assert.Equal(t, 0, store.Sweep(at(90000)), "a longer window keeps the bucket")
	assert.Equal(t, 1, store.Len())

	ttl = time.Minute
	assert.Equal(t, 1, store.Sweep(at(90000)))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_Sweep_WithoutIdleTTL(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	store.Push("k", at(0))
	assert.Equal(t, 0, store.Sweep(at(int64(24*time.Hour/time.Millisecond))))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_BackgroundSweep(t *testing.T) {
	store := NewMemoryStore(WithSweepInterval(10*time.Millisecond), WithIdleTTL(time.Millisecond))
	defer store.Close()

	store.Push("k", time.Now().Add(-time.Hour))

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	store := NewMemoryStore(WithSweepInterval(time.Minute), WithIdleTTL(time.Minute))
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestMemoryStore_ConcurrentTake(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	const limit = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		recorded int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := store.Take(ctx, "shared", time.Minute, limit, time.Now())
			if err == nil && w.Recorded {
				mu.Lock()
				recorded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, recorded, "concurrent takes must never exceed the limit")
}

func TestMemoryStore_ConcurrentKeys(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.Push(fmt.Sprintf("key-%d", n%10), time.Now())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, store.Len())
}
