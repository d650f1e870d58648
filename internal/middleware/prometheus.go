package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/anonforum/internal/metrics"
)

// unmatchedRoute labels requests that hit no registered route so that
// scanners cannot inflate label cardinality.
const unmatchedRoute = "unmatched"

// PrometheusMiddleware observes every request by route pattern. It also
// counts the bytes sent so archive downloads show up in traffic metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		status := c.Writer.Status()
		code := strconv.Itoa(status)

		metrics.RequestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(method, route, code).Inc()
		if n := c.Writer.Size(); n > 0 {
			metrics.ResponseBytes.WithLabelValues(route).Add(float64(n))
		}

		switch {
		case status >= http.StatusInternalServerError:
			metrics.ErrorsTotal.WithLabelValues("http_5xx").Inc()
		case status == http.StatusTooManyRequests:
			metrics.ErrorsTotal.WithLabelValues("throttled").Inc()
		}
	}
}
