package rpc

import (
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Idle sources are forgotten after visitorTTL; their bucket starts full again
// on the next request.
const visitorTTL = 5 * time.Minute

// limiter keeps one token bucket per client source. A non-positive rate
// disables throttling.
type limiter struct {
	perSecond rate.Limit
	burst     int
	visitors  *cache.Cache
}

func newLimiter(perSecond float64, burst int) *limiter {
	if burst <= 0 {
		burst = 1
	}
	return &limiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		visitors:  cache.New(visitorTTL, visitorTTL),
	}
}

func (l *limiter) allow(source string) bool {
	if l == nil || l.perSecond <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	bucket := l.bucket(source)
	// Re-storing slides the expiry window forward.
	l.visitors.SetDefault(source, bucket)
	return bucket.Allow()
}

func (l *limiter) bucket(source string) *rate.Limiter {
	if existing, ok := l.visitors.Get(source); ok {
		return existing.(*rate.Limiter)
	}
	fresh := rate.NewLimiter(l.perSecond, l.burst)
	if err := l.visitors.Add(source, fresh, cache.DefaultExpiration); err != nil {
		// Another request created the bucket first.
		if existing, ok := l.visitors.Get(source); ok {
			return existing.(*rate.Limiter)
		}
	}
	return fresh
}
