package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMsgSize      = 512
	defaultInterval = time.Second
	minInterval     = 100 * time.Millisecond
	maxInterval     = 10 * time.Second
)

// The server is only reachable on the gate's own WiFi network.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsPosition struct {
	S     *logic.GatePosition `json:"s,omitempty"`
	Error string              `json:"error,omitempty"`
}

// parseInterval reads ?interval=500ms, falling back to the default when
// missing or out of range.
func parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= minInterval && d <= maxInterval {
			return d
		}
	}
	return defaultInterval
}

// wsConnect streams the gate position: once on connect, then whenever it
// changes.
func (h *Handler) wsConnect(c *gin.Context) {
	interval := parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}
	h.track(conn)
	defer func() {
		h.untrack(conn)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.wsReader(conn, done)

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	var last *logic.GatePosition
	send := func() error {
		pos, err := h.gate.Position()
		if err != nil {
			return h.wsWrite(conn, wsPosition{Error: err.Error()})
		}
		if last != nil && *last == pos {
			return nil
		}
		last = &pos
		return h.wsWrite(conn, wsPosition{S: &pos})
	}

	if err := send(); err != nil {
		h.log.Infow("ws_write_failed_initial", "err", err)
		return
	}
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.log.Infow("ws_ping_failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := send(); err != nil {
				h.log.Infow("ws_write_failed", "err", err)
				return
			}
		}
	}
}

func (h *Handler) wsWrite(conn *websocket.Conn, msg wsPosition) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// wsReader drains incoming frames so control messages are handled and a
// closed peer is noticed.
func (h *Handler) wsReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.Debugw("ws_read_closed", "err", err)
			return
		}
	}
}

func (h *Handler) track(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams[conn] = struct{}{}
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.streams, conn)
}

// CloseStreams sends a going-away close frame to every open /ws stream and
// closes it. http.Server.Shutdown does not wait for hijacked connections, so
// the server calls this on shutdown.
func (h *Handler) CloseStreams() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.streams))
	for conn := range h.streams {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
	if len(conns) > 0 {
		h.log.Infow("ws_streams_closed", "count", len(conns))
	}
}

// Streams returns the number of open /ws streams.
func (h *Handler) Streams() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}
