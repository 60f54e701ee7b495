// Package ratelimit provides sliding-window rate limiting for HTTP requests.
// A Store keeps, per key, the timestamps of recent consumptions; the Service
// turns a store lookup into an allow/deny decision with remaining quota and a
// retry-after hint; a Policy runs an ordered list of checks against one
// request and rejects it with HTTP 429 on the first denial.
package ratelimit

import (
	"context"
	"time"
)

// ReasonRateLimited is the Result.Reason reported for denied consumptions.
const ReasonRateLimited = "rate_limited"

// Store holds the sliding windows for all keys. Implementations must be safe
// for concurrent use, and Take must be atomic per key.
type Store interface {
	// Take drops every entry of key older than now-window, counts the
	// survivors and records now when fewer than limit survived.
	Take(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (Window, error)

	// Reset discards every bucket. Intended for test isolation.
	Reset(ctx context.Context) error

	// Close stops background work and releases resources.
	Close() error
}

// Window is the state of one bucket observed by Store.Take.
type Window struct {
	Count    int       // Entries inside the window before recording
	Oldest   time.Time // Oldest surviving entry, zero when the bucket was empty
	Recorded bool      // Whether now was appended
}

// Rule is a window length and the number of consumptions allowed inside it.
type Rule struct {
	Window time.Duration
	Limit  int
}

// Request is a single consumption against a key.
type Request struct {
	Key    string
	Window time.Duration
	Limit  int
	Now    time.Time // Zero means the service clock
}

// Result is the outcome of a consumption. It drives the immediate response
// and is never stored.
type Result struct {
	Allowed           bool
	Remaining         int
	Limit             int
	RetryAfterSeconds int    // Set only when denied
	Reason            string // Set only when denied
}

// Consumer is the check-and-record contract used by policies.
type Consumer interface {
	Consume(ctx context.Context, req Request) (Result, error)
}
