package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"plantoee/backend/services/oee-monitor/internal/models"
)

// MicrostopsHandlers edits the microstops of the active order.
type MicrostopsHandlers struct {
	monitor Monitor
	logger  *zap.Logger
}

// NewMicrostopsHandlers returns handler.
func NewMicrostopsHandlers(monitor Monitor, logger *zap.Logger) *MicrostopsHandlers {
	return &MicrostopsHandlers{monitor: monitor, logger: logger}
}

// Create handles POST /api/microstops.
func (h *MicrostopsHandlers) Create(w http.ResponseWriter, r *http.Request) {
	rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	rec.ID = 0
	h.save(w, r, rec, http.StatusCreated)
}

// Update handles PUT /api/microstops/{id}.
func (h *MicrostopsHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	rec.ID = id
	h.save(w, r, rec, http.StatusOK)
}

// Delete handles DELETE /api/microstops/{id}.
func (h *MicrostopsHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.monitor.DeleteMicrostop(r.Context(), id); err != nil {
		h.logger.Warn("microstop delete failed", zap.Int64("microstop_id", id), zap.Error(err))
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MicrostopsHandlers) save(w http.ResponseWriter, r *http.Request, rec models.MicrostopRecord, status int) {
	saved, err := h.monitor.SaveMicrostop(r.Context(), rec)
	if err != nil {
		h.logger.Warn("microstop save failed", zap.Int64("microstop_id", rec.ID), zap.Error(err))
		writeFailure(w, err)
		return
	}
	writeJSON(w, status, saved)
}

func readRecord(w http.ResponseWriter, r *http.Request) (models.MicrostopRecord, bool) {
	var rec models.MicrostopRecord
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return rec, false
	}
	if rec.StartTime.IsZero() || rec.EndTime.IsZero() {
		writeError(w, http.StatusBadRequest, "start_date and end_date required")
		return rec, false
	}
	if rec.EndTime.Before(rec.StartTime) {
		writeError(w, http.StatusBadRequest, "end_date before start_date")
		return rec, false
	}
	return rec, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid microstop id")
		return 0, false
	}
	return id, true
}
