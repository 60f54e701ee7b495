package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink receives attempt and block notifications from policies. Calls are
// fire-and-forget: a Sink cannot influence the decision.
type Sink interface {
	Attempt(ctx context.Context, policy string)
	Blocked(ctx context.Context, policy, reason string)
}

// NopSink discards every notification.
type NopSink struct{}

func (NopSink) Attempt(context.Context, string)         {}
func (NopSink) Blocked(context.Context, string, string) {}

// MultiSink fans notifications out to several sinks.
type MultiSink []Sink

func (ms MultiSink) Attempt(ctx context.Context, policy string) {
	for _, s := range ms {
		safeNotify(func() { s.Attempt(ctx, policy) })
	}
}

func (ms MultiSink) Blocked(ctx context.Context, policy, reason string) {
	for _, s := range ms {
		safeNotify(func() { s.Blocked(ctx, policy, reason) })
	}
}

// safeNotify runs fn and swallows any panic it raises.
func safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Rate limit sink failed", "error", r)
		}
	}()
	fn()
}

// RedisStatsSink keeps abuse counters in Redis hashes: a cumulative total and
// one bucket per minute with a TTL.
type RedisStatsSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStatsSink creates a sink writing under <prefix>:stats.
func NewRedisStatsSink(client *redis.Client, prefix string, ttl time.Duration) *RedisStatsSink {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStatsSink{
		client: client,
		prefix: prefix + ":stats",
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *RedisStatsSink) Attempt(ctx context.Context, policy string) {
	s.record(ctx, policy+":attempt")
}

func (s *RedisStatsSink) Blocked(ctx context.Context, policy, reason string) {
	s.record(ctx, policy+":blocked:"+reason)
}

func (s *RedisStatsSink) record(ctx context.Context, field string) {
	if err := s.Record(ctx, field); err != nil {
		slog.Debug("Rate limit stats not recorded", "field", field, "error", err)
	}
}

// Record increments field in the total and current-minute hashes.
func (s *RedisStatsSink) Record(ctx context.Context, field string) error {
	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, s.now().UTC().Format("200601021504"))

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
