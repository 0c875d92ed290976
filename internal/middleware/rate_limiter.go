package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

// RateLimitConfig describes a token bucket per key: Requests tokens refill
// every Window, at most Burst are held, and keys idle for IdleTTL are dropped.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
	IdleTTL  time.Duration
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.Requests <= 0 {
		c.Requests = 1
	}
	if c.Window <= 0 {
		c.Window = time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 5 * time.Minute
	}
	return c
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter keeps one bucket per key, typically "scope:client-ip".
type KeyedRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	lastGC  time.Time
}

// NewKeyedRateLimiter constructs a limiter from cfg, filling unset fields with
// defaults.
func NewKeyedRateLimiter(cfg RateLimitConfig) *KeyedRateLimiter {
	cfg = cfg.withDefaults()
	now := time.Now
	return &KeyedRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		burst:   cfg.Burst,
		idleTTL: cfg.IdleTTL,
		now:     now,
		lastGC:  now(),
	}
}

// Allow spends one token from key's bucket.
func (l *KeyedRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.forgetIdleLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Len reports how many keys currently hold a bucket.
func (l *KeyedRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// SetClock overrides the time source.
func (l *KeyedRateLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// forgetIdleLocked scans at most once per idle TTL.
func (l *KeyedRateLimiter) forgetIdleLocked(now time.Time) {
	if now.Sub(l.lastGC) < l.idleTTL {
		return
	}
	l.lastGC = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}
