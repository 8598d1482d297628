package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vibez-client/internal/transport"
)

// Realtime is the read-only view of the transport the status endpoint
// reports.
type Realtime interface {
	State() transport.State
	Destinations() []string
}

// StatusHandler reports client liveness and realtime connection state.
type StatusHandler struct {
	realtime Realtime
}

// NewStatusHandler builds a StatusHandler.
func NewStatusHandler(realtime Realtime) *StatusHandler {
	return &StatusHandler{realtime: realtime}
}

// Health is the liveness probe.
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status reports the realtime connection state and active subscriptions.
func (h *StatusHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connection":    h.realtime.State().String(),
		"subscriptions": h.realtime.Destinations(),
	})
}
