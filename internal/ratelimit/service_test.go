package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store), store
}

func consumeAt(t *testing.T, svc *Service, key string, window time.Duration, limit int, ms int64) Result {
	t.Helper()
	res, err := svc.Consume(context.Background(), Request{Key: key, Window: window, Limit: limit, Now: at(ms)})
	require.NoError(t, err)
	return res
}

func TestService_Consume_SlidingWindow(t *testing.T) {
	svc, store := newTestService()
	defer store.Close()
	const window = 10 * time.Second

	// t=0, 1000, 2000 are allowed with decreasing remaining.
	for i, want := range []int{2, 1, 0} {
		res := consumeAt(t, svc, "k", window, 3, int64(i)*1000)
		assert.True(t, res.Allowed, "call %d", i+1)
		assert.Equal(t, want, res.Remaining)
		assert.Equal(t, 3, res.Limit)
		assert.Empty(t, res.Reason)
	}

	// t=5000: denied, oldest (t=0) leaves the window in 5s.
	res := consumeAt(t, svc, "k", window, 3, 5000)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 5, res.RetryAfterSeconds)
	assert.Equal(t, ReasonRateLimited, res.Reason)

	// t=10100: t=0 has been pruned, one slot frees up.
	res = consumeAt(t, svc, "k", window, 3, 10100)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestService_Consume_DenialDoesNotRecord(t *testing.T) {
	svc, store := newTestService()
	defer store.Close()

	consumeAt(t, svc, "k", time.Second, 1, 0)
	for i := 0; i < 5; i++ {
		res := consumeAt(t, svc, "k", time.Second, 1, int64(100+i))
		assert.False(t, res.Allowed)
	}
	assert.Equal(t, 1, store.PruneAndCount("k", time.Second, at(200)))

	// Once the single entry ages out the key is free again.
	res := consumeAt(t, svc, "k", time.Second, 1, 1001)
	assert.True(t, res.Allowed)
}

func TestService_Consume_BoundaryEntryStillCounts(t *testing.T) {
	svc, store := newTestService()
	defer store.Close()

	consumeAt(t, svc, "k", 10*time.Second, 1, 0)

	res := consumeAt(t, svc, "k", 10*time.Second, 1, 10000)
	assert.False(t, res.Allowed, "entry exactly window old is still inside")
	assert.Equal(t, 1, res.RetryAfterSeconds, "retry after is floored at one second")
}

func TestService_Consume_RetryAfterRoundsUp(t *testing.T) {
	svc, store := newTestService()
	defer store.Close()

	consumeAt(t, svc, "k", 10*time.Second, 1, 0)
	res := consumeAt(t, svc, "k", 10*time.Second, 1, 4500)
	assert.False(t, res.Allowed)
	assert.Equal(t, 6, res.RetryAfterSeconds)
}

func TestService_Consume_ZeroLimitAlwaysDenies(t *testing.T) {
	svc, store := newTestService()
	defer store.Close()

	res := consumeAt(t, svc, "k", 30*time.Second, 0, 0)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30, res.RetryAfterSeconds, "empty bucket waits a full window")
	assert.Equal(t, 0, store.Len())
}

func TestService_Consume_KeysAreIndependent(t *testing.T) {
	svc, store := newTestService()
	defer store.Close()

	consumeAt(t, svc, "a", time.Minute, 1, 0)
	assert.False(t, consumeAt(t, svc, "a", time.Minute, 1, 1).Allowed)
	assert.True(t, consumeAt(t, svc, "b", time.Minute, 1, 1).Allowed)
}

func TestService_Consume_AllowedCountNeverExceedsLimit(t *testing.T) {
	svc, store := newTestService()
	defer store.Close()
	const (
		window = 1000 * time.Millisecond
		limit  = 4
	)

	var allowed []int64
	for ms := int64(0); ms < 5000; ms += 37 {
		if consumeAt(t, svc, "k", window, limit, ms).Allowed {
			allowed = append(allowed, ms)
		}
	}

	// No interval [t-window, t] may hold more than limit allowed events.
	for i := range allowed {
		inWindow := 0
		for j := 0; j <= i; j++ {
			if allowed[i]-allowed[j] <= window.Milliseconds() {
				inWindow++
			}
		}
		assert.LessOrEqual(t, inWindow, limit, "at t=%d", allowed[i])
	}
}

func TestService_Consume_UsesClock(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	now := at(0)
	svc := NewService(store, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	res, err := svc.Consume(ctx, Request{Key: "k", Window: time.Second, Limit: 1})
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = svc.Consume(ctx, Request{Key: "k", Window: time.Second, Limit: 1})
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	now = at(1001)
	res, err = svc.Consume(ctx, Request{Key: "k", Window: time.Second, Limit: 1})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

type failingStore struct{ err error }

func (f failingStore) Take(context.Context, string, time.Duration, int, time.Time) (Window, error) {
	return Window{}, f.err
}
func (failingStore) Reset(context.Context) error { return nil }
func (failingStore) Close() error                { return nil }

func TestService_Consume_StoreError(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewService(failingStore{err: boom})

	_, err := svc.Consume(context.Background(), Request{Key: "k", Window: time.Second, Limit: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "consume k")
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		window time.Duration
		oldest time.Time
		now    time.Time
		want   int
	}{
		{"half window", 10 * time.Second, at(0), at(5000), 5},
		{"fraction rounds up", 10 * time.Second, at(0), at(9001), 1},
		{"expired floors at one", 10 * time.Second, at(0), at(20000), 1},
		{"empty bucket", 90 * time.Second, time.Time{}, at(0), 90},
		{"sub-second window", 200 * time.Millisecond, time.Time{}, at(0), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryAfter(tt.window, tt.oldest, tt.now))
		})
	}
}
