package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// DashboardHandlers serves the current dashboard state and stream control.
type DashboardHandlers struct {
	monitor Monitor
	logger  *zap.Logger
}

// NewDashboardHandlers returns handler.
func NewDashboardHandlers(monitor Monitor, logger *zap.Logger) *DashboardHandlers {
	return &DashboardHandlers{monitor: monitor, logger: logger}
}

// Snapshot handles GET /api/snapshot.
func (h *DashboardHandlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Snapshot())
}

// Reconnect handles POST /api/stream/reconnect.
func (h *DashboardHandlers) Reconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.Reconnect(); err != nil {
		h.logger.Warn("manual reconnect rejected", zap.Error(err))
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}
