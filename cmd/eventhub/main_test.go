package main

import (
	"context"
	"testing"
	"time"

	"eventhub/internal/config"
	"eventhub/internal/models"
	"eventhub/internal/observability"
	"eventhub/internal/ratelimit"
	"eventhub/internal/storage"
	"eventhub/internal/version"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedBootstrapKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	cfg := models.NewDefaultConfig()

	require.NoError(t, seedBootstrapKey(ctx, store, cfg), "empty key is a no-op")

	cfg.Security.BootstrapKey = "evh_bootstrap-secret"
	require.NoError(t, seedBootstrapKey(ctx, store, cfg))
	require.NoError(t, seedBootstrapKey(ctx, store, cfg), "seeding twice is idempotent")

	key, err := store.GetAPIKeyByHash(ctx, models.HashAPIKey("evh_bootstrap-secret"))
	require.NoError(t, err)
	assert.True(t, key.HasPermission(models.PermissionAdmin))
	assert.Equal(t, "bootstrap", key.UserID)
}

func newTestProvider(t *testing.T) *observability.Provider {
	t.Helper()
	p, err := observability.Setup(models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090},
		models.ObservabilityConfig{ServiceName: "eventhub-test"}, "test", version.GetInfo())
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p
}

func TestNewRateLimiter_Memory(t *testing.T) {
	cfg := models.NewDefaultConfig()
	store, sink, err := newRateLimiter(context.Background(), cfg, config.NewLiveRules(cfg), newTestProvider(t))
	require.NoError(t, err)
	defer store.Close()

	assert.Len(t, sink, 1)
	svc := ratelimit.NewService(store)
	res, err := svc.Consume(context.Background(), ratelimit.Request{Key: "k", Window: time.Minute, Limit: 1})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNewRateLimiter_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := models.NewDefaultConfig()
	cfg.RateLimit.Store = models.RateLimitStoreRedis
	cfg.RateLimit.Redis.Addr = mr.Addr()
	cfg.RateLimit.Stats.Enabled = true

	store, sink, err := newRateLimiter(context.Background(), cfg, config.NewLiveRules(cfg), newTestProvider(t))
	require.NoError(t, err)
	defer store.Close()
	require.Len(t, sink, 2)

	svc := ratelimit.NewService(store)
	for i := 0; i < 2; i++ {
		_, err := svc.Consume(context.Background(), ratelimit.Request{Key: "k", Window: time.Minute, Limit: 1})
		require.NoError(t, err)
	}
	sink.Blocked(context.Background(), ratelimit.PolicyShortLinkCreation, models.ErrorCodeRateLimitUser)

	assert.True(t, mr.Exists("eventhub:ratelimit:k"))
	assert.Equal(t, "1", mr.HGet("eventhub:ratelimit:stats:total", "short_link_creation:blocked:RATE_LIMIT_USER"))
}

func TestNewRateLimiter_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := models.NewDefaultConfig()
	cfg.RateLimit.Store = models.RateLimitStoreRedis
	cfg.RateLimit.Redis.Addr = addr

	_, _, err := newRateLimiter(context.Background(), cfg, config.NewLiveRules(cfg), newTestProvider(t))
	assert.Error(t, err)
}
