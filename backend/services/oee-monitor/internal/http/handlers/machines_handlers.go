package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// MachinesHandlers serves the machine catalog and the active selection.
type MachinesHandlers struct {
	monitor Monitor
	logger  *zap.Logger
}

// NewMachinesHandlers returns handler.
func NewMachinesHandlers(monitor Monitor, logger *zap.Logger) *MachinesHandlers {
	return &MachinesHandlers{monitor: monitor, logger: logger}
}

type selectRequest struct {
	WorkcenterID int64 `json:"workcenter_id"`
}

// List handles GET /api/machines.
func (h *MachinesHandlers) List(w http.ResponseWriter, r *http.Request) {
	units, err := h.monitor.Machines(r.Context())
	if err != nil {
		h.logger.Error("machine catalog fetch failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "machine catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"machines": units,
	})
}

// Current handles GET /api/selection.
func (h *MachinesHandlers) Current(w http.ResponseWriter, r *http.Request) {
	unit, ok := h.monitor.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no machine selected")
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

// Select handles PUT /api/selection.
func (h *MachinesHandlers) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.WorkcenterID <= 0 {
		writeError(w, http.StatusBadRequest, "workcenter_id required")
		return
	}
	unit, err := h.monitor.Select(r.Context(), req.WorkcenterID)
	if err != nil {
		h.logger.Warn("select failed", zap.Int64("workcenter_id", req.WorkcenterID), zap.Error(err))
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

// Deselect handles DELETE /api/selection.
func (h *MachinesHandlers) Deselect(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.Deselect(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
