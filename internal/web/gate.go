package web

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

// inProgress is the optimistic reply to a pulse command.
const inProgress = logic.PositionIntermediate

func positionBody(pos logic.GatePosition) []byte {
	return []byte(fmt.Sprintf(`{"s":%d}`, pos))
}

func (h *Handler) gateStatus(c *gin.Context) {
	pos, err := h.gate.Position()
	if err != nil {
		h.log.Errorw("gate_status_failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", positionBody(pos))
}

func (h *Handler) gateStep(c *gin.Context) {
	h.pulse(c, logic.TargetStep)
}

func (h *Handler) gateOpen(c *gin.Context) {
	h.pulse(c, logic.TargetFullCycle)
}

// pulse replies 200 {"s":2} once the electrical pulse is done, whatever the
// outcome. The gate may still be travelling; clients poll /gate_status. A
// hardware fault adds an "error" field to the same reply.
func (h *Handler) pulse(c *gin.Context, target logic.Target) {
	if err := h.gate.Pulse(target); err != nil {
		h.log.Errorw("pulse_failed", "target", target, "err", err)
		c.JSON(http.StatusOK, gin.H{"s": inProgress, "error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", positionBody(inProgress))
}

func (h *Handler) home(c *gin.Context) {
	var pos *logic.GatePosition
	if p, err := h.gate.Position(); err == nil {
		pos = &p
	} else {
		h.log.Warnw("home_position_failed", "err", err)
	}
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := renderHome(c.Writer, h.tracker.Snapshot(), pos); err != nil {
		h.log.Errorw("home_render_failed", "err", err)
	}
}
