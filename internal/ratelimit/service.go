package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Service implements the consume contract on top of a Store. It holds no
// per-key state of its own.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock replaces time.Now as the source of the current instant.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Consumer = (*Service)(nil)

// Consume records one event against req.Key if fewer than req.Limit events
// happened within req.Window, and reports the decision. A denied consumption
// records nothing. A limit of zero or less always denies.
func (s *Service) Consume(ctx context.Context, req Request) (Result, error) {
	now := req.Now
	if now.IsZero() {
		now = s.now()
	}

	w, err := s.store.Take(ctx, req.Key, req.Window, req.Limit, now)
	if err != nil {
		return Result{}, fmt.Errorf("consume %s: %w", req.Key, err)
	}

	if w.Count >= req.Limit {
		return Result{
			Allowed:           false,
			Remaining:         0,
			Limit:             req.Limit,
			RetryAfterSeconds: retryAfter(req.Window, w.Oldest, now),
			Reason:            ReasonRateLimited,
		}, nil
	}

	remaining := req.Limit - (w.Count + 1)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, Limit: req.Limit}, nil
}

// retryAfter returns the whole seconds until oldest leaves the window,
// floored at one. An empty bucket waits a full window.
func retryAfter(window time.Duration, oldest, now time.Time) int {
	wait := window
	if !oldest.IsZero() {
		wait = window - now.Sub(oldest)
	}
	secs := int((wait + time.Second - 1) / time.Second)
	if wait <= 0 || secs < 1 {
		return 1
	}
	return secs
}
