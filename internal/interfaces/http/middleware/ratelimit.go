package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/erp/marketplace/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// idleKeyTTL is how long an unused key keeps its bucket
const idleKeyTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per key.
// Buckets idle for longer than idleKeyTTL are evicted.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets *gocache.Cache
}

// NewRateLimiter allows limit requests per window for each key
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	return NewRateLimiterRPS(float64(limit)/window.Seconds(), limit)
}

// NewRateLimiterRPS allows a sustained rate of rps per key with the given burst
func NewRateLimiterRPS(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: gocache.New(idleKeyTTL, 2*idleKeyTTL),
	}
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.buckets.Get(key); ok {
		l := v.(*rate.Limiter)
		rl.buckets.SetDefault(key, l)
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.buckets.SetDefault(key, l)
	return l
}

// Allow checks if a request from the given key should be allowed
func (rl *RateLimiter) Allow(key string) bool {
	return rl.bucket(key).Allow()
}

// Remaining returns the whole tokens currently available for key
func (rl *RateLimiter) Remaining(key string) int {
	tokens := rl.bucket(key).Tokens()
	if tokens < 0 {
		return 0
	}
	return int(tokens)
}

// KeyByClientIP keys requests by client address
func KeyByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByActor keys authenticated requests by tenant, falling back to the user
// for platform callers and to the client address for anonymous ones
func KeyByActor(c *gin.Context) string {
	actor, ok := GetActor(c)
	if !ok {
		return "ip:" + c.ClientIP()
	}
	if actor.IsPlatformScope() {
		return "user:" + actor.UserID.String()
	}
	return "tenant:" + actor.TenantID.String()
}

// KeyByParam keys requests by a route parameter
func KeyByParam(name string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		return name + ":" + c.Param(name)
	}
}

// RateLimit returns a rate limiting middleware keyed by client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, KeyByClientIP)
}

// RateLimitByKey returns a rate limiting middleware with custom key extractor
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)

		if !limiter.Allow(key) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponse(
				dto.ErrCodeRateLimited,
				"Too many requests. Please try again later.",
			))
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))
		c.Next()
	}
}
