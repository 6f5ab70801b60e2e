package orchestrator

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RequestKind distinguishes the two operations the orchestrator rate-limits
// at its entry points (spec §4.6).
type RequestKind string

const (
	KindStartJob  RequestKind = "start_job"
	KindSubscribe RequestKind = "subscribe"
)

const (
	startJobRate   = rate.Limit(1) // 1 new job per second per caller
	startJobBurst  = 3
	subscribeRate  = rate.Limit(5)
	subscribeBurst = 10
	limiterIdleTTL = 10 * time.Minute
)

type callerLimiters struct {
	startJob  *rate.Limiter
	subscribe *rate.Limiter
	lastUsed  time.Time
}

// RateLimiter backs the orchestrator's Allow(callerID, kind) hook with
// lazily-created, per-caller golang.org/x/time/rate buckets, reaped when
// idle past limiterIdleTTL (spec §4.6).
type RateLimiter struct {
	mu      sync.Mutex
	callers map[string]*callerLimiters
	now     func() time.Time
}

// NewRateLimiter builds a RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		callers: make(map[string]*callerLimiters),
		now:     time.Now,
	}
}

// Allow reports whether callerID may proceed with an operation of kind,
// consuming one token from its bucket if so.
func (r *RateLimiter) Allow(callerID string, kind RequestKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.callers[callerID]
	if !ok {
		c = &callerLimiters{
			startJob:  rate.NewLimiter(startJobRate, startJobBurst),
			subscribe: rate.NewLimiter(subscribeRate, subscribeBurst),
		}
		r.callers[callerID] = c
	}
	c.lastUsed = r.now()

	switch kind {
	case KindStartJob:
		return c.startJob.Allow()
	case KindSubscribe:
		return c.subscribe.Allow()
	default:
		return true
	}
}

// ReapIdle removes caller buckets untouched since before the idle TTL,
// bounding memory for a long-lived process with a churning caller set.
func (r *RateLimiter) ReapIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-limiterIdleTTL)
	removed := 0
	for id, c := range r.callers {
		if c.lastUsed.Before(cutoff) {
			delete(r.callers, id)
			removed++
		}
	}
	return removed
}
