package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Admin traffic kinds.
const (
	KindRequest = "request"
	KindStream  = "stream"
)

// requestKind tells monitor websocket upgrades apart from plain requests.
func requestKind(r *http.Request) string {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return KindStream
	}
	return KindRequest
}

// routeLabel is the matched route; unmatched paths share one label so
// scanners cannot grow the metric series.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// AdminAccess logs and counts admin traffic. Plain requests get a latency
// sample. Monitor streams count as open while they run and are logged once,
// with their lifetime, when the watcher goes away.
func AdminAccess(logger zerolog.Logger, service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		kind := requestKind(c.Request)
		if kind == KindStream {
			StreamOpened(service)
			defer StreamClosed(service)
		}
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := routeLabel(c)
		RecordHTTPRequest(service, kind, c.Request.Method, route, status, elapsed)

		event := logger.Info()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		event = event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Str("remote", c.ClientIP())
		if kind == KindStream {
			event.Dur("lifetime", elapsed).Msg("monitor_stream_closed")
			return
		}
		event.
			Dur("duration", elapsed).
			Int("bytes", c.Writer.Size()).
			Msg("admin_request")
	}
}
