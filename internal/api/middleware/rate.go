package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL drops a client's limiter after this long without requests.
	IdleTTL time.Duration
	// MaxClients bounds the number of tracked clients.
	MaxClients uint64
}

// DefaultRateLimitConfig returns production-ready rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTTL:           10 * time.Minute,
		MaxClients:        65536,
	}
}

func (cfg RateLimitConfig) withDefaults() RateLimitConfig {
	def := DefaultRateLimitConfig()
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = def.MaxClients
	}
	return cfg
}

func (cfg RateLimitConfig) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
}

// RateLimit creates a per-IP rate limiting middleware. Idle clients expire
// and the least recently seen client is evicted once MaxClients is reached.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	cfg = cfg.withDefaults()
	clients := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](cfg.IdleTTL),
		ttlcache.WithCapacity[string, *rate.Limiter](cfg.MaxClients),
	)

	return func(c *gin.Context) {
		item, _ := clients.GetOrSet(c.ClientIP(), cfg.newLimiter())
		if !item.Value().Allow() {
			rejectTooMany(c)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := cfg.newLimiter()

	return func(c *gin.Context) {
		if !limiter.Allow() {
			rejectTooMany(c)
			return
		}
		c.Next()
	}
}

func rejectTooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"message": "rate limit exceeded",
		"status":  false,
	})
}
