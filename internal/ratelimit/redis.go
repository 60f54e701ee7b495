package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// takeScript keeps one sorted set per key, scored by unix milliseconds.
// Entries strictly older than now-window are removed before counting.
const takeScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', key)

local oldest = -1
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first > 0 then
    oldest = tonumber(first[2])
end

local recorded = 0
if count < limit then
    redis.call('ZADD', key, now, member)
    if window > 0 then
        redis.call('PEXPIRE', key, window)
    end
    recorded = 1
end

return {count, oldest, recorded}
`

// RedisStore is a Store shared by every process pointing at the same Redis.
// Each key is a sorted set updated by a single Lua script, which makes Take
// atomic across instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	script *redis.Script
}

// NewRedisStore creates a store that namespaces its keys under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		script: redis.NewScript(takeScript),
	}
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (Window, error) {
	// Members must be unique even when two takes share a millisecond.
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())

	raw, err := s.script.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(), windowMillis(window), limit, member).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("redis take: %w", err)
	}
	if len(raw) != 3 {
		return Window{}, fmt.Errorf("redis take: unexpected reply length %d", len(raw))
	}

	w := Window{Count: int(raw[0]), Recorded: raw[2] == 1}
	if raw[1] >= 0 {
		w.Oldest = time.UnixMilli(raw[1])
	}
	return w, nil
}

// Reset deletes every key under the store prefix.
func (s *RedisStore) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

// windowMillis rounds a positive window up to whole milliseconds, the
// resolution of the sorted set scores.
func windowMillis(window time.Duration) int64 {
	if window <= 0 {
		return 0
	}
	return int64((window + time.Millisecond - 1) / time.Millisecond)
}
