package daemon

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	correlationIDKey  = "correlation_id"
	correlationHeader = "X-Correlation-ID"
)

// CorrelationMiddleware tags every request with a correlation id, reusing
// the caller's X-Correlation-ID when present and echoing it back.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(correlationHeader)
		if len(correlationID) == 0 {
			correlationID = uuid.New().String()
		}

		c.Set(correlationIDKey, correlationID)
		c.Header(correlationHeader, correlationID)

		c.Next()
	}
}

func GetCorrelationID(c *gin.Context) string {
	return c.GetString(correlationIDKey)
}

// LogWithCorrelation returns a logger carrying the request's correlation id
// and, for session routes, the session id.
func LogWithCorrelation(c *gin.Context) *logrus.Entry {
	fields := logrus.Fields{
		correlationIDKey: GetCorrelationID(c),
	}
	if sessionID := c.Param("id"); len(sessionID) > 0 {
		fields["session_id"] = sessionID
	}
	return logrus.WithFields(fields)
}

// RequestLogger writes one log line per request through logrus so requests
// land in the in-memory log buffer alongside lifecycle events.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := LogWithCorrelation(c).WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		})

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Errorln("Request failed")
		case status >= 400:
			entry.Warnln("Request rejected")
		default:
			entry.Debugln("Request served")
		}
	}
}

// matchOrigin reports whether origin satisfies an allowed-origins entry.
// Entries are exact origins, "*" or a single leading subdomain wildcard
// such as "https://*.example.com".
func matchOrigin(origin, pattern string) bool {
	switch {
	case len(origin) == 0:
		return false
	case pattern == "*", origin == pattern:
		return true
	}

	prefix, suffix, ok := strings.Cut(pattern, "*")
	if !ok || !strings.HasPrefix(origin, prefix) || !strings.HasSuffix(origin, suffix) {
		return false
	}

	host := strings.TrimSuffix(strings.TrimPrefix(origin, prefix), suffix)
	if len(host) == 0 || strings.ContainsAny(host, "/:@") {
		return false
	}
	// Only the subdomain label is wild; dots would allow deeper nesting
	// which the entry did not name.
	return !strings.Contains(host, ".")
}
