package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL drops per-client limiters not seen for this long. Zero keeps
	// them forever.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTTL:           10 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clients tracks one limiter per remote address.
type clients struct {
	cfg RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	byIP      map[string]*client
	lastSweep time.Time
}

func newClients(cfg RateLimitConfig) *clients {
	return &clients{
		cfg:  cfg,
		now:  time.Now,
		byIP: make(map[string]*client),
	}
}

func (cs *clients) get(ip string) *rate.Limiter {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := cs.now()
	if cs.cfg.IdleTTL > 0 && now.Sub(cs.lastSweep) >= cs.cfg.IdleTTL {
		for key, c := range cs.byIP {
			if now.Sub(c.lastSeen) >= cs.cfg.IdleTTL {
				delete(cs.byIP, key)
			}
		}
		cs.lastSweep = now
	}

	c, ok := cs.byIP[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(cs.cfg.RequestsPerSecond), cs.cfg.Burst)}
		cs.byIP[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (cs *clients) len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.byIP)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return rateLimit(newClients(cfg))
}

func rateLimit(cs *clients) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cs.get(c.ClientIP()).Allow() {
			tooManyRequests(c)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			tooManyRequests(c)
			return
		}
		c.Next()
	}
}

// WebDriver clients expect the wire response envelope even on rejection.
func tooManyRequests(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"status": 13,
		"value":  gin.H{"message": "rate limit exceeded"},
	})
}
