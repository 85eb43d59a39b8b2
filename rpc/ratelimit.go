package rpc

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter applies a token bucket per client source. A non-positive rate
// disables limiting.
type clientLimiter struct {
	perSecond float64
	burst     int

	mu        sync.Mutex
	visitors  map[string]*limiterEntry
	lastSweep time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		perSecond: perSecond,
		burst:     burst,
		visitors:  make(map[string]*limiterEntry),
	}
}

func (c *clientLimiter) allow(source string, now time.Time) bool {
	if c == nil || c.perSecond <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) > limiterIdleTTL {
		for id, entry := range c.visitors {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(c.visitors, id)
			}
		}
		c.lastSweep = now
	}
	entry, ok := c.visitors[source]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(c.perSecond), c.burst)}
		c.visitors[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
