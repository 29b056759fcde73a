// Package ratelimit applies global and per-client token buckets to the API.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the token bucket parameters.
type Config struct {
	// Global limit shared by all clients.
	GlobalRate  rate.Limit
	GlobalBurst int

	// Per-client limit keyed by IP.
	PerIPRate  rate.Limit
	PerIPBurst int

	// CleanupInterval bounds how long idle per-IP buckets are kept.
	CleanupInterval time.Duration
}

// DefaultConfig returns limits suitable for a small deployment.
func DefaultConfig() Config {
	return Config{
		GlobalRate:      50,
		GlobalBurst:     100,
		PerIPRate:       10,
		PerIPBurst:      20,
		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter enforces a global bucket first, then a per-IP bucket.
type Limiter struct {
	config Config

	global *rate.Limiter

	mu          sync.Mutex
	perIP       map[string]*rate.Limiter
	lastCleanup time.Time
}

// New creates a Limiter from config.
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perIP:       make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a request from ip may proceed. When the request is
// rejected the second return value names the exhausted bucket ("global" or
// "per_ip") for metrics.
func (l *Limiter) Allow(ip string) (bool, string) {
	if !l.global.Allow() {
		return false, "global"
	}
	if !l.ipLimiter(ip).Allow() {
		return false, "per_ip"
	}
	l.maybeCleanup()
	return true, ""
}

// RetryAfter suggests a client wait, in whole seconds, before retrying.
func (l *Limiter) RetryAfter() int {
	if l.config.PerIPRate <= 0 {
		return 1
	}
	s := int(math.Ceil(1 / float64(l.config.PerIPRate)))
	if s < 1 {
		s = 1
	}
	return s
}

func (l *Limiter) ipLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.perIP[ip]
	if !ok {
		limiter = rate.NewLimiter(l.config.PerIPRate, l.config.PerIPBurst)
		l.perIP[ip] = limiter
	}
	return limiter
}

// maybeCleanup drops all per-IP buckets once per cleanup interval. Dropping
// everything is deliberate: recreated buckets start full, which only ever
// favours the client.
func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	l.perIP = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}
