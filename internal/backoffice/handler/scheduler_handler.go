package handler

import (
	"net/http"
	"time"

	"github.com/evetabi/periodsettle/internal/scheduler"
	"github.com/gin-gonic/gin"
)

// SchedulerView exposes the live per-item state of the scheduler.
// *scheduler.Scheduler implements it.
type SchedulerView interface {
	Snapshot() []scheduler.ItemStatus
}

// ClientCounter reports connected WebSocket clients. *ws.Hub implements it.
type ClientCounter interface {
	ConnectedCount() int
}

// SchedulerHandler serves the /admin/scheduler endpoint.
type SchedulerHandler struct {
	view SchedulerView // nil when the scheduler runs in another process
	hub  ClientCounter // optional
}

// NewSchedulerHandler creates a SchedulerHandler. Either argument may be nil.
func NewSchedulerHandler(view SchedulerView, hub ClientCounter) *SchedulerHandler {
	return &SchedulerHandler{view: view, hub: hub}
}

// Status godoc
// GET /admin/scheduler
func (h *SchedulerHandler) Status(c *gin.Context) {
	if h.view == nil {
		respondError(c, http.StatusServiceUnavailable, "ERR_SCHEDULER_UNAVAILABLE",
			"scheduler state is only served by the process running the scheduler")
		return
	}

	items := h.view.Snapshot()
	byState := map[scheduler.State]int{}
	var flagged, failing int
	for _, st := range items {
		byState[st.State]++
		if st.ConfigError != "" {
			flagged++
		} else if st.LastError != "" {
			failing++
		}
	}

	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"timestamp":      time.Now().UTC(),
		"health":         healthIndicator(len(items), flagged, failing),
		"items":          items,
		"by_state":       byState,
		"flagged":        flagged,
		"failing":        failing,
		"ws_connections": wsConnections,
	})
}

// healthIndicator returns GREEN/YELLOW/RED from the share of items that could
// not complete their last tick.
func healthIndicator(total, flagged, failing int) string {
	bad := flagged + failing
	switch {
	case bad == 0:
		return "GREEN"
	case bad*2 > total:
		return "RED"
	default:
		return "YELLOW"
	}
}
