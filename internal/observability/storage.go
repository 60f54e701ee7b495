package observability

import (
	"context"
	"time"

	"eventhub/internal/models"
	"eventhub/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("eventhub/storage")
	meter := otel.Meter("eventhub/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	ctx, span := s.startSpan(ctx, "CreateRegistration", attribute.String("event_id", reg.EventID))
	start := time.Now()
	err := s.inner.CreateRegistration(ctx, reg)
	s.record(ctx, span, "CreateRegistration", start, err)
	return err
}

func (s *InstrumentedStorage) ListRegistrations(ctx context.Context, eventID string) ([]*models.Registration, error) {
	ctx, span := s.startSpan(ctx, "ListRegistrations", attribute.String("event_id", eventID))
	start := time.Now()
	result, err := s.inner.ListRegistrations(ctx, eventID)
	s.record(ctx, span, "ListRegistrations", start, err)
	return result, err
}

func (s *InstrumentedStorage) CreateShortLink(ctx context.Context, link *models.ShortLink) error {
	ctx, span := s.startSpan(ctx, "CreateShortLink", attribute.String("short_link.key", link.Key))
	start := time.Now()
	err := s.inner.CreateShortLink(ctx, link)
	s.record(ctx, span, "CreateShortLink", start, err)
	return err
}

func (s *InstrumentedStorage) GetShortLink(ctx context.Context, key string) (*models.ShortLink, error) {
	ctx, span := s.startSpan(ctx, "GetShortLink", attribute.String("short_link.key", key))
	start := time.Now()
	result, err := s.inner.GetShortLink(ctx, key)
	s.record(ctx, span, "GetShortLink", start, err)
	return result, err
}

func (s *InstrumentedStorage) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	ctx, span := s.startSpan(ctx, "CreateAPIKey", attribute.String("api_key.prefix", key.Prefix))
	start := time.Now()
	err := s.inner.CreateAPIKey(ctx, key)
	s.record(ctx, span, "CreateAPIKey", start, err)
	return err
}

func (s *InstrumentedStorage) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	ctx, span := s.startSpan(ctx, "GetAPIKeyByHash")
	start := time.Now()
	result, err := s.inner.GetAPIKeyByHash(ctx, hash)
	s.record(ctx, span, "GetAPIKeyByHash", start, err)
	return result, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
