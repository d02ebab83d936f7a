package web

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
	"github.com/vpetryaev/GateRTO-1000/internal/metrics"
	"github.com/vpetryaev/GateRTO-1000/internal/status"
)

// Gate is the actuator hardware as seen by the command routes.
type Gate interface {
	Position() (logic.GatePosition, error)
	Pulse(target logic.Target) error
}

// Handler wires HTTP routes to the gate, the status tracker and metrics.
type Handler struct {
	gate     Gate
	tracker  *status.Tracker
	requests *metrics.Actuator
	gatherer prometheus.Gatherer
	log      *logger.Logger

	mu      sync.Mutex
	streams map[*websocket.Conn]struct{}
}

// Option configures a Handler.
type Option func(*Handler)

// WithGate enables the command routes and the home page.
func WithGate(g Gate) Option {
	return func(h *Handler) { h.gate = g }
}

// WithMetrics exposes g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// WithRequestMetrics counts requests per route and status code.
func WithRequestMetrics(m *metrics.Actuator) Option {
	return func(h *Handler) { h.requests = m }
}

// NewHandler constructs a handler. Without WithGate only the status routes
// are served (Trigger Node).
func NewHandler(tracker *status.Tracker, log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{tracker: tracker, log: log, streams: make(map[*websocket.Conn]struct{})}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InitRoutes builds the gin router.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLog)

	router.GET("/index.json", h.statusJSON)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(h.gatherer)))
	}
	if h.gate != nil {
		h.registerGateRoutes(router)
	}
	return router
}

func (h *Handler) registerGateRoutes(r *gin.Engine) {
	r.GET("/", h.home)
	r.GET("/index.html", h.home)
	r.GET("/gate_status", h.gateStatus)
	r.GET("/gate_sbs", h.gateStep)
	r.GET("/gate_open", h.gateOpen)
	r.GET("/ws", h.wsConnect)
}

func (h *Handler) statusJSON(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", status.FormatJSON(h.tracker.Snapshot()))
}
