package observability

import (
	"context"
	"time"

	"eventhub/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RateLimitMetrics is a ratelimit.Sink that counts policy attempts and
// blocks as OpenTelemetry counters.
type RateLimitMetrics struct {
	attempts metric.Int64Counter
	blocked  metric.Int64Counter
}

var _ ratelimit.Sink = (*RateLimitMetrics)(nil)

// NewRateLimitMetrics registers the ratelimit.attempts and ratelimit.blocked
// counters on meter.
func NewRateLimitMetrics(meter metric.Meter) (*RateLimitMetrics, error) {
	attempts, err := meter.Int64Counter(
		"ratelimit.attempts",
		metric.WithDescription("Requests evaluated by a rate limit policy"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	blocked, err := meter.Int64Counter(
		"ratelimit.blocked",
		metric.WithDescription("Requests rejected by a rate limit policy"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &RateLimitMetrics{attempts: attempts, blocked: blocked}, nil
}

func (m *RateLimitMetrics) Attempt(ctx context.Context, policy string) {
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("policy", policy)))
}

func (m *RateLimitMetrics) Blocked(ctx context.Context, policy, reason string) {
	m.blocked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("reason", reason),
	))
}

// InstrumentedStore wraps a ratelimit.Store with a span, a latency histogram
// and an error counter per Take.
type InstrumentedStore struct {
	inner    ratelimit.Store
	backend  string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	denied   metric.Int64Counter
}

var _ ratelimit.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps inner. backend ("memory", "redis") is recorded
// as an attribute on every measurement.
func NewInstrumentedStore(inner ratelimit.Store, backend string, meter metric.Meter) (*InstrumentedStore, error) {
	duration, err := meter.Float64Histogram(
		"ratelimit.store.duration",
		metric.WithDescription("Duration of rate limit store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"ratelimit.store.errors",
		metric.WithDescription("Number of failed rate limit store operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	denied, err := meter.Int64Counter(
		"ratelimit.store.denied",
		metric.WithDescription("Takes that found the window full"),
		metric.WithUnit("{take}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		backend:  backend,
		tracer:   otel.Tracer("eventhub/ratelimit"),
		duration: duration,
		errors:   errCounter,
		denied:   denied,
	}, nil
}

func (s *InstrumentedStore) Take(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (ratelimit.Window, error) {
	// Keys carry emails and IPs, so only the window shape goes on the span.
	ctx, span := s.tracer.Start(ctx, "ratelimit.Take", trace.WithAttributes(
		attribute.String("ratelimit.backend", s.backend),
		attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
		attribute.Int("ratelimit.limit", limit),
	))
	defer span.End()

	start := time.Now()
	w, err := s.inner.Take(ctx, key, window, limit, now)
	attrs := metric.WithAttributes(attribute.String("backend", s.backend))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return w, err
	}

	span.SetAttributes(
		attribute.Int("ratelimit.count", w.Count),
		attribute.Bool("ratelimit.recorded", w.Recorded),
	)
	if !w.Recorded {
		s.denied.Add(ctx, 1, attrs)
	}
	span.SetStatus(codes.Ok, "")
	return w, nil
}

func (s *InstrumentedStore) Reset(ctx context.Context) error {
	return s.inner.Reset(ctx)
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
