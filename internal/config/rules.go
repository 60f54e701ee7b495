package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"eventhub/internal/models"
	"eventhub/internal/ratelimit"
)

// LiveRules serves rate limit rules read from the environment on every call,
// falling back to the loaded configuration. Windows are given in
// milliseconds, e.g. EVENTHUB_PUBREG_IP_WINDOW_MS=600000.
type LiveRules struct {
	cfg *models.Config
}

var (
	_ ratelimit.RegistrationRules = (*LiveRules)(nil)
	_ ratelimit.ShortLinkRules    = (*LiveRules)(nil)
)

// NewLiveRules creates LiveRules over a loaded configuration. The
// configuration must not be modified afterwards.
func NewLiveRules(cfg *models.Config) *LiveRules {
	return &LiveRules{cfg: cfg}
}

func (l *LiveRules) RegistrationPerIP() ratelimit.Rule {
	return liveRule("PUBREG_IP", l.cfg.RateLimit.PublicRegistration.PerIP)
}

func (l *LiveRules) RegistrationPerEmail() ratelimit.Rule {
	return liveRule("PUBREG_EMAIL", l.cfg.RateLimit.PublicRegistration.PerEmail)
}

func (l *LiveRules) ShortLinkPerUser() ratelimit.Rule {
	return liveRule("SHORTLINK_USER", l.cfg.RateLimit.ShortLinks.PerUser)
}

func (l *LiveRules) ShortLinkPerIP() ratelimit.Rule {
	return liveRule("SHORTLINK_IP", l.cfg.RateLimit.ShortLinks.PerIP)
}

// LargestWindow returns the longest window among the live rules. A memory
// store sweeping with it never evicts a bucket a rule still counts.
func (l *LiveRules) LargestWindow() time.Duration {
	largest := l.cfg.RateLimit.LargestWindow()
	for _, rule := range []ratelimit.Rule{
		l.RegistrationPerIP(),
		l.RegistrationPerEmail(),
		l.ShortLinkPerUser(),
		l.ShortLinkPerIP(),
	} {
		if rule.Window > largest {
			largest = rule.Window
		}
	}
	return largest
}

// Bypassed reports whether rate limiting is switched off for tests. It never
// returns true in production, whatever the other settings say.
func (l *LiveRules) Bypassed() bool {
	env := l.cfg.Environment
	if v, ok := lookup("ENV"); ok {
		env = v
	}
	if strings.EqualFold(env, models.EnvironmentProduction) {
		return false
	}
	if v, ok := lookup("RATE_LIMIT_DISABLED"); ok {
		return strings.EqualFold(v, "true")
	}
	return l.cfg.RateLimit.Disabled
}

// liveRule reads <name>_WINDOW_MS and <name>_LIMIT. A missing, unparseable
// or non-positive window and a missing, unparseable or negative limit fall
// back to def.
func liveRule(name string, def models.LimitRule) ratelimit.Rule {
	rule := ratelimit.Rule{Window: def.Window, Limit: def.Limit}

	if v := strings.TrimSpace(os.Getenv(EnvPrefix + name + "_WINDOW_MS")); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			rule.Window = time.Duration(ms) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + name + "_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			rule.Limit = n
		}
	}
	return rule
}
