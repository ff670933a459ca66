// Package ratelimit tracks per-tenant request counts over a rolling
// window and blocks tenants that exceed the configured maximum. It
// runs before SQL inspection so a flood of well-formed queries cannot
// saturate the shared connection pool.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults used when the config leaves the limits unset.
const (
	DefaultMaxRequests = 120
	DefaultWindow      = 60 * time.Second
	DefaultBlock       = 5 * time.Minute
)

// Result reports the outcome of a single check.
type Result struct {
	Allowed   bool
	Reason    string        // set when Allowed is false
	Limit     int           // configured maximum per window
	Remaining int           // requests left in the current window
	Reset     time.Time     // when the current window (or block) ends
	RetryIn   time.Duration // suggested Retry-After when blocked
}

type tenantState struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Limiter holds per-tenant rolling counters. A single Limiter is
// shared by all request handlers; counts are approximate under
// concurrency, which is an accepted tradeoff on the hot path.
type Limiter struct {
	maxRequests int
	window      time.Duration
	block       time.Duration

	mu      sync.Mutex
	tenants map[int]*tenantState
	now     func() time.Time // swappable for tests
}

// New creates a Limiter. Zero or negative arguments fall back to the
// package defaults.
func New(maxRequests int, window, block time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if block <= 0 {
		block = DefaultBlock
	}
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		block:       block,
		tenants:     make(map[int]*tenantState),
		now:         time.Now,
	}
}

// Check records one request for the tenant and reports whether it may
// proceed. Once a tenant exceeds the maximum inside a window it is
// blocked outright until the cooldown elapses, regardless of counter
// state.
func (l *Limiter) Check(tenantID int) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.tenants[tenantID]
	if !ok {
		st = &tenantState{windowStart: now}
		l.tenants[tenantID] = st
	}

	if now.Before(st.blockedUntil) {
		return Result{
			Allowed: false,
			Reason:  "tenant is temporarily blocked after exceeding the request limit",
			Limit:   l.maxRequests,
			Reset:   st.blockedUntil,
			RetryIn: st.blockedUntil.Sub(now),
		}
	}

	if now.Sub(st.windowStart) >= l.window {
		st.count = 0
		st.windowStart = now
	}

	st.count++
	if st.count > l.maxRequests {
		st.blockedUntil = now.Add(l.block)
		return Result{
			Allowed: false,
			Reason:  "request limit exceeded",
			Limit:   l.maxRequests,
			Reset:   st.blockedUntil,
			RetryIn: l.block,
		}
	}

	return Result{
		Allowed:   true,
		Limit:     l.maxRequests,
		Remaining: l.maxRequests - st.count,
		Reset:     st.windowStart.Add(l.window),
	}
}
