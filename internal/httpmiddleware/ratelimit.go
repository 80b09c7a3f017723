package httpmiddleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"campusconnect/internal/auth"
	"campusconnect/internal/metrics"
)

// TokenBucket is an in-memory per-client rate limiter. Authenticated
// callers are keyed by user id, everyone else by client IP. Buckets that
// have refilled completely carry no state and are dropped on the next sweep.
type TokenBucket struct {
	capacity  float64
	perSecond float64
	mu        sync.Mutex
	state     map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewTokenBucket creates a limiter with capacity tokens refilled at perMinute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity:  float64(capacity),
		perSecond: float64(perMinute) / 60,
		state:     make(map[string]*bucket),
		now:       time.Now,
	}
}

// GinMiddleware rejects requests over the limit with 429.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(clientKey(c)) {
			metrics.RateLimited.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok && claims.UserID != "" {
		return "user:" + claims.UserID
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// fullAfter is how long an untouched bucket takes to refill to capacity.
func (l *TokenBucket) fullAfter() time.Duration {
	return time.Duration(l.capacity / l.perSecond * float64(time.Second))
}

func (l *TokenBucket) allow(key string) bool {
	if l.perSecond <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweep(now)

	b, ok := l.state[key]
	if !ok {
		b = &bucket{tokens: l.capacity, seen: now}
		l.state[key] = b
	}
	b.tokens = math.Min(l.capacity, b.tokens+now.Sub(b.seen).Seconds()*l.perSecond)
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets idle long enough to be full again, at most once per
// refill period. Caller holds l.mu.
func (l *TokenBucket) sweep(now time.Time) {
	idle := l.fullAfter()
	if now.Sub(l.lastSweep) < idle {
		return
	}
	l.lastSweep = now
	for k, b := range l.state {
		if now.Sub(b.seen) >= idle {
			delete(l.state, k)
		}
	}
}
