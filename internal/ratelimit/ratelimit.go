// Package ratelimit implements the fixed-window request limiter guarding
// the API's sensitive endpoints.
//
// The algorithm is a fixed-window counter, not a true sliding window: a
// client aligned with a window boundary can land up to 2x the nominal
// limit across the boundary. This is the accepted tradeoff for O(1)
// memory per key; callers needing stricter pacing need a different
// algorithm, not a tighter limit here.
package ratelimit

import (
	"context"
	"log"
	"time"
)

// Policy is a per-namespace limit over a fixed window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Pre-configured namespaces. These values are part of the API contract
// with the frontend and must not drift.
const (
	NamespaceAuth   = "auth"   // login, signup
	NamespaceAPI    = "api"    // general API traffic
	NamespaceStrict = "strict" // forgot-password, reset-password
)

// DefaultPolicies maps each namespace to its policy.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		NamespaceAuth:   {Limit: 5, Window: time.Minute},
		NamespaceAPI:    {Limit: 60, Window: time.Minute},
		NamespaceStrict: {Limit: 3, Window: 15 * time.Minute},
	}
}

// Result is the outcome of a single limiter check. Exceeding the limit
// is a normal Allowed=false result, never an error.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// CounterStore tracks fixed-window counters per key. Incr creates the
// window on first use, resets it when the previous window has passed,
// and returns the post-increment count together with the window's reset
// time. Implementations must be safe for concurrent use.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
	Close() error
}

// Limiter applies namespace policies over a CounterStore.
//
// Counter state lives wherever the store puts it: the in-memory store is
// per-process and a multi-instance deployment must use the Redis store to
// keep the limit global.
type Limiter struct {
	store    CounterStore
	policies map[string]Policy
	now      func() time.Time
}

// New constructs a Limiter with the default namespace policies.
func New(store CounterStore) *Limiter {
	return &Limiter{
		store:    store,
		policies: DefaultPolicies(),
		now:      time.Now,
	}
}

// Check records a request for the client in the namespace and reports
// whether it is within the namespace's limit.
//
// A store failure fails open: the request is allowed and the failure is
// logged. Availability of the API is preferred over strict limiting when
// the counter backend is down.
func (l *Limiter) Check(ctx context.Context, namespace, client string) Result {
	policy, ok := l.policies[namespace]
	if !ok {
		policy = l.policies[NamespaceAPI]
	}

	count, resetAt, err := l.store.Incr(ctx, namespace+":"+client, policy.Window)
	if err != nil {
		log.Printf("ratelimit: counter store unavailable, failing open: %v", err)
		return Result{
			Allowed:   true,
			Limit:     policy.Limit,
			Remaining: policy.Limit,
			ResetAt:   l.now().Add(policy.Window),
		}
	}

	remaining := policy.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(policy.Limit),
		Limit:     policy.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Close releases the underlying counter store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
