package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"eventhub/internal/models"
)

// Check is one rate limit applied by a Policy.
type Check struct {
	Name    string // Short label used in logs, e.g. "ip"
	Code    string // Machine-readable code returned on denial
	Message string // Human-readable message returned on denial

	// Rule is evaluated on every request so configuration changes apply
	// without a restart.
	Rule func() Rule

	// Key derives the rate limit key from the request. Returning false
	// skips the check for this request.
	Key func(r *http.Request) (string, bool)
}

// Policy enforces an ordered list of checks. The first denial decides the
// response and later checks are not evaluated.
type Policy struct {
	Name     string
	Checks   []Check
	Consumer Consumer
	Sink     Sink

	// Bypass disables every check when it returns true.
	Bypass func() bool
}

// Middleware returns HTTP middleware enforcing the policy.
func (p *Policy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.Bypass != nil && p.Bypass() {
			next.ServeHTTP(w, r)
			return
		}

		sink := p.sink()
		safeNotify(func() { sink.Attempt(r.Context(), p.Name) })

		var tightest *Result
		for _, check := range p.Checks {
			key, ok := check.Key(r)
			if !ok {
				continue
			}
			rule := check.Rule()

			res, err := p.Consumer.Consume(r.Context(), Request{
				Key:    key,
				Window: rule.Window,
				Limit:  rule.Limit,
			})
			if err != nil {
				slog.Warn("Rate limit check failed, allowing request",
					"policy", p.Name,
					"check", check.Name,
					"error", err,
				)
				continue
			}

			if !res.Allowed {
				safeNotify(func() { sink.Blocked(r.Context(), p.Name, check.Code) })
				slog.Warn("Rate limit exceeded",
					"policy", p.Name,
					"check", check.Name,
					"key", key,
					"limit", res.Limit,
					"retry_after", res.RetryAfterSeconds,
				)
				writeRateLimited(w, res, check)
				return
			}

			if tightest == nil || res.Remaining < tightest.Remaining {
				best := res
				tightest = &best
			}
		}

		if tightest != nil {
			setLimitHeaders(w, *tightest)
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Policy) sink() Sink {
	if p.Sink == nil {
		return NopSink{}
	}
	return p.Sink
}

func setLimitHeaders(w http.ResponseWriter, res Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
}

func writeRateLimited(w http.ResponseWriter, res Result, check Check) {
	setLimitHeaders(w, res)
	w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	body := models.NewRateLimitResponse(check.Message, check.Code, res.RetryAfterSeconds)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode rate limit response", "error", err)
	}
}
