package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterGlobalBucket(t *testing.T) {
	// A refill rate far below one token per test run keeps the counts exact.
	l := New(Config{
		GlobalRate:      0.1,
		GlobalBurst:     5,
		PerIPRate:       100,
		PerIPBurst:      200,
		CleanupInterval: time.Minute,
	})

	allowed := 0
	for i := 0; i < 10; i++ {
		ok, _ := l.Allow("192.0.2.1")
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed, "burst should cap the initial allowance")

	ok, limitType := l.Allow("192.0.2.1")
	require.False(t, ok)
	assert.Equal(t, "global", limitType)
}

func TestLimiterPerIPBucket(t *testing.T) {
	l := New(Config{
		GlobalRate:      1000,
		GlobalBurst:     2000,
		PerIPRate:       0.1,
		PerIPBurst:      10,
		CleanupInterval: time.Minute,
	})

	allowed := 0
	for i := 0; i < 20; i++ {
		ok, _ := l.Allow("192.0.2.10")
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed)

	ok, limitType := l.Allow("192.0.2.10")
	require.False(t, ok)
	assert.Equal(t, "per_ip", limitType)

	// A different client has its own bucket.
	ok, _ = l.Allow("192.0.2.11")
	assert.True(t, ok)
}

func TestLimiterCleanupDropsIdleBuckets(t *testing.T) {
	l := New(Config{
		GlobalRate:      1000,
		GlobalBurst:     2000,
		PerIPRate:       10,
		PerIPBurst:      20,
		CleanupInterval: 50 * time.Millisecond,
	})

	for _, ip := range []string{"192.0.2.20", "192.0.2.21", "192.0.2.22"} {
		ok, _ := l.Allow(ip)
		require.True(t, ok)
	}

	l.mu.Lock()
	before := len(l.perIP)
	l.mu.Unlock()
	require.Equal(t, 3, before)

	time.Sleep(80 * time.Millisecond)

	// The next allowed request triggers the sweep, which also drops the
	// bucket it just created. It will be rebuilt, full, on the call after.
	ok, _ := l.Allow("192.0.2.23")
	require.True(t, ok)

	l.mu.Lock()
	after := len(l.perIP)
	l.mu.Unlock()
	assert.Equal(t, 0, after)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 1, New(Config{PerIPRate: 10}).RetryAfter())
	assert.Equal(t, 4, New(Config{PerIPRate: 0.25}).RetryAfter())
	assert.Equal(t, 1, New(Config{}).RetryAfter())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Greater(t, float64(cfg.GlobalRate), float64(cfg.PerIPRate))
	assert.Positive(t, cfg.GlobalBurst)
	assert.Positive(t, cfg.PerIPBurst)
	assert.Positive(t, cfg.CleanupInterval)
}

func BenchmarkLimiterAllow(b *testing.B) {
	l := New(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Allow("192.0.2.1")
	}
}
