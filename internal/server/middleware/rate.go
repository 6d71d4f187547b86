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
	// MaxClients bounds the per-client table; idle entries are evicted
	// once it is full.
	MaxClients int
	IdleAfter  time.Duration
}

// DefaultRateLimitConfig returns limits sized for scrapers and health probes.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		Burst:             40,
		MaxClients:        1024,
		IdleAfter:         5 * time.Minute,
	}
}

// Disabled reports whether cfg turns limiting off.
func (c RateLimitConfig) Disabled() bool {
	return c.RequestsPerSecond <= 0
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Disabled() {
		return passthrough
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		cl, ok := clients[ip]
		if !ok {
			if cfg.MaxClients > 0 && len(clients) >= cfg.MaxClients {
				evictIdle(clients, now.Add(-cfg.IdleAfter))
			}
			cl = &client{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		allowed := cl.limiter.AllowN(now, 1)
		mu.Unlock()

		if !allowed {
			reject(c)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a rate limiting middleware shared by all clients.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Disabled() {
		return passthrough
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			reject(c)
			return
		}
		c.Next()
	}
}

// evictIdle drops clients not seen since cutoff. If none qualify the
// oldest entry goes, keeping the table bounded.
func evictIdle(clients map[string]*client, cutoff time.Time) {
	var (
		oldestIP string
		oldest   time.Time
	)
	evicted := false
	for ip, cl := range clients {
		if cl.lastSeen.Before(cutoff) {
			delete(clients, ip)
			evicted = true
			continue
		}
		if oldestIP == "" || cl.lastSeen.Before(oldest) {
			oldestIP, oldest = ip, cl.lastSeen
		}
	}
	if !evicted && oldestIP != "" {
		delete(clients, oldestIP)
	}
}

func reject(c *gin.Context) {
	c.Header("Retry-After", "1")
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded",
	})
}

func passthrough(c *gin.Context) { c.Next() }
