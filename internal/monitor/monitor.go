// Package monitor watches request volume per sliding window and raises
// throttled alerts when traffic crosses configured thresholds. It counts with
// the same window store the rate limiter uses.
package monitor

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"eventhub/internal/models"
	"eventhub/internal/ratelimit"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// Alert kinds.
const (
	AlertRequests    = "requests"
	AlertPerIP       = "per_ip"
	AlertServerError = "server_errors"
	AlertRateLimited = "rate_limited"
)

const (
	keyAll         = "all"
	keyServerError = "5xx"
	keyRateLimited = "429"
	keyIPPrefix    = "ip:"
)

// Monitor counts requests in a sliding window. Create it with New.
type Monitor struct {
	cfg      models.MonitorConfig
	counters *ratelimit.MemoryStore
	now      func() time.Time
	started  time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	alerts metric.Int64Counter

	requests     atomic.Int64
	serverErrors atomic.Int64
	rateLimited  atomic.Int64
	alertCount   atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor. meter receives the monitor.alerts counter. When
// sweepInterval is positive a goroutine evicts idle counters and throttles.
func New(cfg models.MonitorConfig, meter metric.Meter, sweepInterval time.Duration, opts ...Option) (*Monitor, error) {
	alerts, err := meter.Int64Counter(
		"monitor.alerts",
		metric.WithDescription("Traffic anomaly alerts raised"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:      cfg,
		counters: ratelimit.NewMemoryStore(ratelimit.WithIdleTTL(cfg.Window)),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
		alerts:   alerts,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.started = m.now()

	if sweepInterval > 0 {
		go m.sweepLoop(sweepInterval)
	}
	return m, nil
}

// Middleware records every request after the wrapped handler has written
// its response.
func (m *Monitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics := httpsnoop.CaptureMetrics(next, w, r)
		m.Record(r.Context(), ratelimit.ClientIP(r), metrics.Code)
	})
}

// Record counts one request from ip that completed with status.
func (m *Monitor) Record(ctx context.Context, ip string, status int) {
	now := m.now()

	m.requests.Add(1)
	if n := m.count(ctx, keyAll, now); m.exceeds(n, m.cfg.RequestThreshold) {
		m.alert(ctx, AlertRequests, "", n, m.cfg.RequestThreshold, now)
	}

	if n := m.count(ctx, keyIPPrefix+ip, now); m.exceeds(n, m.cfg.PerIPThreshold) {
		m.alert(ctx, AlertPerIP, ip, n, m.cfg.PerIPThreshold, now)
	}

	switch {
	case status >= http.StatusInternalServerError:
		m.serverErrors.Add(1)
		if n := m.count(ctx, keyServerError, now); m.exceeds(n, m.cfg.ServerErrorThreshold) {
			m.alert(ctx, AlertServerError, "", n, m.cfg.ServerErrorThreshold, now)
		}
	case status == http.StatusTooManyRequests:
		m.rateLimited.Add(1)
		if n := m.count(ctx, keyRateLimited, now); m.exceeds(n, m.cfg.RateLimitedThreshold) {
			m.alert(ctx, AlertRateLimited, "", n, m.cfg.RateLimitedThreshold, now)
		}
	}
}

// count adds one event under key and returns the number of events in the
// current window including it.
func (m *Monitor) count(ctx context.Context, key string, now time.Time) int {
	w, _ := m.counters.Take(ctx, key, m.cfg.Window, math.MaxInt, now)
	return w.Count + 1
}

// exceeds treats a zero threshold as disabled.
func (m *Monitor) exceeds(n, threshold int) bool {
	return threshold > 0 && n > threshold
}

func (m *Monitor) alert(ctx context.Context, kind, subject string, count, threshold int, now time.Time) {
	if !m.limiter(kind + ":" + subject).AllowN(now, 1) {
		return
	}

	m.alertCount.Add(1)
	m.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	slog.Warn("Traffic threshold exceeded",
		"kind", kind,
		"subject", subject,
		"count", count,
		"threshold", threshold,
		"window", m.cfg.Window.String(),
	)
}

func (m *Monitor) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.limiters[key]
	if !ok {
		every := rate.Inf
		if m.cfg.AlertCooldown > 0 {
			every = rate.Every(m.cfg.AlertCooldown)
		}
		l = rate.NewLimiter(every, 1)
		m.limiters[key] = l
	}
	return l
}

// Sweep drops idle window counters and alert throttles that have fully
// recovered. It returns the number of counters removed.
func (m *Monitor) Sweep(now time.Time) int {
	removed := m.counters.Sweep(now)

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, l := range m.limiters {
		if l.Limit() == rate.Inf || l.TokensAt(now) >= float64(l.Burst()) {
			delete(m.limiters, key)
		}
	}
	return removed
}

func (m *Monitor) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

// Close stops the sweep goroutine.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return m.counters.Close()
}

// Stats is a snapshot of request counters.
type Stats struct {
	Since   time.Time `json:"since"`
	Window  string    `json:"window"`
	Totals  Counts    `json:"totals"`
	Current Counts    `json:"current_window"`
	// TrackedKeys is the number of live window counters, roughly one per
	// active client IP.
	TrackedKeys int   `json:"tracked_keys"`
	Alerts      int64 `json:"alerts"`
}

// Counts groups request counters.
type Counts struct {
	Requests     int64 `json:"requests"`
	ServerErrors int64 `json:"server_errors"`
	RateLimited  int64 `json:"rate_limited"`
}

// Stats returns totals since start and the counts inside the current window.
func (m *Monitor) Stats() Stats {
	now := m.now()
	return Stats{
		Since:  m.started,
		Window: m.cfg.Window.String(),
		Totals: Counts{
			Requests:     m.requests.Load(),
			ServerErrors: m.serverErrors.Load(),
			RateLimited:  m.rateLimited.Load(),
		},
		Current: Counts{
			Requests:     int64(m.counters.PruneAndCount(keyAll, m.cfg.Window, now)),
			ServerErrors: int64(m.counters.PruneAndCount(keyServerError, m.cfg.Window, now)),
			RateLimited:  int64(m.counters.PruneAndCount(keyRateLimited, m.cfg.Window, now)),
		},
		TrackedKeys: m.counters.Len(),
		Alerts:      m.alertCount.Load(),
	}
}
