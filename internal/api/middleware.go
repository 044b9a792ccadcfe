package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/orrery/internal/logging"
)

// RequestIDHeader carries the request id in and out of the service.
const RequestIDHeader = "X-Request-ID"

// unmatchedRoute labels requests that matched no registered route so that
// arbitrary paths do not explode metric cardinality.
const unmatchedRoute = "unmatched"

// HTTPMetrics receives one observation per served request.
type HTTPMetrics interface {
	ObserveHTTP(route, method string, code int, d time.Duration)
}

// RequestLogger ensures every request carries a request id, taken from the
// inbound header when present, and attaches an annotated logger to the
// request context. Completed requests are logged at debug level.
func RequestLogger(base logging.Logger) gin.HandlerFunc {
	if base == nil {
		base = logging.Noop()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader(RequestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, logging.RequestIDFromContext(ctx))

		start := time.Now()
		c.Next()

		reqLog.Debug(ctx, "request served",
			logging.Int("status", c.Writer.Status()),
			logging.Any("duration", time.Since(start)),
		)
	}
}

// Metrics records request counts and latency by route template.
func Metrics(rec HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rec == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		rec.ObserveHTTP(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// RateLimit rejects requests from addresses that exhausted their bucket.
func RateLimit(l *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Recovery turns handler panics into 500 responses and logs them.
func Recovery(base logging.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log := logging.FromContext(c.Request.Context(), base)
		log.Error(c.Request.Context(), "handler panicked", logging.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})
}
