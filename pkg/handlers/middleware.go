package handlers

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dev-sujan/prepdesk/pkg/logging"
	"github.com/dev-sujan/prepdesk/pkg/metrics"
	"github.com/dev-sujan/prepdesk/pkg/ratelimit"
)

// RequestLogger logs one structured line per request and feeds the HTTP
// metrics. Unmatched routes are recorded under their raw path.
func RequestLogger() gin.HandlerFunc {
	log := logging.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), elapsed.Seconds())

		event := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}

// Recovery converts handler panics into a 500 instead of killing the
// process.
func Recovery() gin.HandlerFunc {
	log := logging.WithComponent("http")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}

// RateLimit rejects requests over the configured rate with a 429 and a
// Retry-After hint.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, bucket := limiter.Allow(c.ClientIP())
		if !allowed {
			metrics.RecordRateLimitRejection(bucket)
			c.Header("Retry-After", strconv.Itoa(limiter.RetryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
