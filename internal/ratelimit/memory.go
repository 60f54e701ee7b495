package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Each key maps to a slice of timestamps
// kept in non-decreasing order, so pruning only ever trims a prefix. An
// optional background goroutine evicts buckets that have gone idle.
type MemoryStore struct {
	sweepInterval time.Duration
	idleTTL       func() time.Duration

	mu      sync.Mutex
	buckets map[string][]time.Time
	done    chan struct{}
	closed  bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithSweepInterval enables the eviction goroutine, running every d.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.sweepInterval = d }
}

// WithIdleTTL sets how long a bucket may go without a new entry before the
// sweep drops it. It should be at least the largest window used with the store.
func WithIdleTTL(d time.Duration) MemoryOption {
	return WithIdleTTLFunc(func() time.Duration { return d })
}

// WithIdleTTLFunc is WithIdleTTL for windows that change at runtime. ttl is
// evaluated on every sweep and must return at least the largest window
// currently in use.
func WithIdleTTLFunc(ttl func() time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.idleTTL = ttl }
}

// NewMemoryStore creates an empty store. The eviction goroutine is started
// only when both a sweep interval and an idle TTL are configured.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		buckets: make(map[string][]time.Time),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sweepInterval > 0 && m.idleTTL != nil {
		go m.cleanup()
	}
	return m
}

// Take implements Store.
func (m *MemoryStore) Take(_ context.Context, key string, window time.Duration, limit int, now time.Time) (Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := Window{Count: m.pruneAndCount(key, window, now)}
	if entries := m.buckets[key]; len(entries) > 0 {
		w.Oldest = entries[0]
	}
	if w.Count < limit {
		m.push(key, now)
		w.Recorded = true
	}
	return w, nil
}

// PruneAndCount removes the entries of key older than now-window and returns
// how many remain. Unknown keys return 0 without creating a bucket.
func (m *MemoryStore) PruneAndCount(key string, window time.Duration, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneAndCount(key, window, now)
}

// Push appends ts to the bucket for key, creating it if needed. Callers must
// push non-decreasing timestamps per key.
func (m *MemoryStore) Push(key string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.push(key, ts)
}

// Oldest returns the oldest entry held for key.
func (m *MemoryStore) Oldest(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.buckets[key]
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0], true
}

// Len returns the number of tracked keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Reset implements Store.
func (m *MemoryStore) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = make(map[string][]time.Time)
	return nil
}

// Sweep drops every bucket whose newest entry is older than now minus the
// idle TTL, returning how many were removed. It is a no-op without a positive
// idle TTL.
func (m *MemoryStore) Sweep(now time.Time) int {
	if m.idleTTL == nil {
		return 0
	}
	ttl := m.idleTTL()
	if ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, entries := range m.buckets {
		if len(entries) == 0 || entries[len(entries)-1].Before(cutoff) {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}

// Close stops the eviction goroutine. It is safe to call more than once.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MemoryStore) pruneAndCount(key string, window time.Duration, now time.Time) int {
	entries, ok := m.buckets[key]
	if !ok {
		return 0
	}
	cutoff := now.Add(-window)

	i := 0
	for i < len(entries) && entries[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		n := copy(entries, entries[i:])
		entries = entries[:n]
		m.buckets[key] = entries
	}
	return len(entries)
}

func (m *MemoryStore) push(key string, ts time.Time) {
	m.buckets[key] = append(m.buckets[key], ts)
}

func (m *MemoryStore) cleanup() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}
