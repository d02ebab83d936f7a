package web

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestIDHeader is echoed into the access log when a client sends it.
const RequestIDHeader = "X-Request-Id"

func (h *Handler) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	code := c.Writer.Status()
	if h.requests != nil {
		h.requests.Requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	}
	h.log.Debugw("http_request",
		"route", route,
		"status", code,
		"remote", c.ClientIP(),
		"request_id", c.GetHeader(RequestIDHeader),
		"latency", time.Since(start),
	)
}
