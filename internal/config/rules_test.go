package config

import (
	"context"
	"testing"
	"time"

	"eventhub/internal/models"
	"eventhub/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveRules_Defaults(t *testing.T) {
	rules := NewLiveRules(models.NewDefaultConfig())

	assert.Equal(t, ratelimit.Rule{Window: 10 * time.Minute, Limit: 10}, rules.RegistrationPerIP())
	assert.Equal(t, ratelimit.Rule{Window: time.Hour, Limit: 3}, rules.RegistrationPerEmail())
	assert.Equal(t, ratelimit.Rule{Window: 10 * time.Minute, Limit: 20}, rules.ShortLinkPerUser())
	assert.Equal(t, ratelimit.Rule{Window: 10 * time.Minute, Limit: 50}, rules.ShortLinkPerIP())
}

func TestLiveRules_ReadsEnvironmentPerCall(t *testing.T) {
	rules := NewLiveRules(models.NewDefaultConfig())

	t.Setenv("EVENTHUB_PUBREG_IP_WINDOW_MS", "1500")
	t.Setenv("EVENTHUB_PUBREG_IP_LIMIT", "2")
	assert.Equal(t, ratelimit.Rule{Window: 1500 * time.Millisecond, Limit: 2}, rules.RegistrationPerIP())

	t.Setenv("EVENTHUB_PUBREG_IP_LIMIT", "5")
	assert.Equal(t, 5, rules.RegistrationPerIP().Limit, "changes apply without a restart")

	t.Setenv("EVENTHUB_SHORTLINK_USER_LIMIT", "0")
	assert.Equal(t, 0, rules.ShortLinkPerUser().Limit, "zero is a valid limit")
}

func TestLiveRules_InvalidValuesFallBack(t *testing.T) {
	cfg := models.NewDefaultConfig()
	rules := NewLiveRules(cfg)

	tests := []struct {
		name   string
		window string
		limit  string
	}{
		{"not numbers", "soon", "many"},
		{"negative", "-100", "-1"},
		{"zero window", "0", " "},
		{"duration syntax", "10s", "3.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EVENTHUB_PUBREG_EMAIL_WINDOW_MS", tt.window)
			t.Setenv("EVENTHUB_PUBREG_EMAIL_LIMIT", tt.limit)
			want := cfg.RateLimit.PublicRegistration.PerEmail
			assert.Equal(t, ratelimit.Rule{Window: want.Window, Limit: want.Limit}, rules.RegistrationPerEmail())
		})
	}
}

func TestLiveRules_LargestWindow(t *testing.T) {
	rules := NewLiveRules(models.NewDefaultConfig())
	assert.Equal(t, time.Hour, rules.LargestWindow())

	t.Setenv("EVENTHUB_SHORTLINK_IP_WINDOW_MS", "7200000")
	assert.Equal(t, 2*time.Hour, rules.LargestWindow())

	t.Setenv("EVENTHUB_SHORTLINK_IP_WINDOW_MS", "1000")
	assert.Equal(t, time.Hour, rules.LargestWindow(), "shorter overrides keep the configured maximum")
}

func TestLiveRules_SweepKeepsBucketsInsideOverriddenWindow(t *testing.T) {
	t.Setenv("EVENTHUB_PUBREG_IP_WINDOW_MS", "86400000")
	t.Setenv("EVENTHUB_PUBREG_IP_LIMIT", "1")

	rules := NewLiveRules(models.NewDefaultConfig())
	store := ratelimit.NewMemoryStore(ratelimit.WithIdleTTLFunc(rules.LargestWindow))
	defer store.Close()

	ctx := context.Background()
	rule := rules.RegistrationPerIP()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	w, err := store.Take(ctx, "pubreg:ip:203.0.113.7", rule.Window, rule.Limit, t0)
	require.NoError(t, err)
	require.True(t, w.Recorded)

	assert.Equal(t, 0, store.Sweep(t0.Add(time.Hour+time.Minute)), "bucket is still inside the 24h window")

	w, err = store.Take(ctx, "pubreg:ip:203.0.113.7", rule.Window, rule.Limit, t0.Add(time.Hour+2*time.Minute))
	require.NoError(t, err)
	assert.False(t, w.Recorded, "quota stays spent until the live window passes")

	assert.Equal(t, 1, store.Sweep(t0.Add(25*time.Hour)))
}

func TestLiveRules_Bypassed(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		configOff   bool
		env         map[string]string
		want        bool
	}{
		{name: "default", environment: "development", want: false},
		{name: "env switch", environment: "development", env: map[string]string{"EVENTHUB_RATE_LIMIT_DISABLED": "true"}, want: true},
		{name: "env switch other value", environment: "development", env: map[string]string{"EVENTHUB_RATE_LIMIT_DISABLED": "1"}, want: false},
		{name: "config switch", environment: "test", configOff: true, want: true},
		{name: "env overrides config", environment: "test", configOff: true, env: map[string]string{"EVENTHUB_RATE_LIMIT_DISABLED": "false"}, want: false},
		{name: "production config ignores switch", environment: "production", configOff: true, env: map[string]string{"EVENTHUB_RATE_LIMIT_DISABLED": "true"}, want: false},
		{name: "production env ignores switch", environment: "development", env: map[string]string{"EVENTHUB_ENV": "production", "EVENTHUB_RATE_LIMIT_DISABLED": "true"}, want: false},
		{name: "non-production env wins over config", environment: "production", env: map[string]string{"EVENTHUB_ENV": "test", "EVENTHUB_RATE_LIMIT_DISABLED": "true"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := models.NewDefaultConfig()
			cfg.Environment = tt.environment
			cfg.RateLimit.Disabled = tt.configOff
			assert.Equal(t, tt.want, NewLiveRules(cfg).Bypassed())
		})
	}
}
