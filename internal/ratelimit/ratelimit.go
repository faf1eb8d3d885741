package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimit interface {
	Allow(addr string) bool
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key. Idle buckets are swept during
// Allow calls, so no background goroutine is needed.
type KeyedLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// New allows perMinute requests per key per minute with bursts of up to burst.
// A perMinute of zero denies everything.
func New(perMinute, burst int) RateLimit {
	return newKeyed(perMinute, burst, time.Now)
}

func newKeyed(perMinute, burst int, now func() time.Time) *KeyedLimiter {
	if perMinute > 0 && burst < 1 {
		burst = 1
	}
	if perMinute <= 0 {
		burst = 0
	}
	return &KeyedLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      now,
		visitors: make(map[string]*visitor),
	}
}

func (kl *KeyedLimiter) Allow(addr string) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	kl.sweep(now)

	v, ok := kl.visitors[addr]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(kl.limit, kl.burst)}
		kl.visitors[addr] = v
	}
	v.lastSeen = now

	return v.limiter.AllowN(now, 1)
}

func (kl *KeyedLimiter) sweep(now time.Time) {
	if now.Sub(kl.lastSweep) < kl.idle {
		return
	}
	for addr, v := range kl.visitors {
		if now.Sub(v.lastSeen) > kl.idle {
			delete(kl.visitors, addr)
		}
	}
	kl.lastSweep = now
}

func (kl *KeyedLimiter) size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.visitors)
}
