package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"plantoee/backend/services/oee-monitor/internal/clients"
	"plantoee/backend/services/oee-monitor/internal/pipeline"
	"plantoee/backend/services/oee-monitor/internal/stream"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(out)
}

// writeFailure maps domain errors onto status codes.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrUnknownUnit), errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrNoActiveOrder), errors.Is(err, stream.ErrNoURL):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, clients.ErrStatus), errors.Is(err, clients.ErrNoRecordID):
		writeError(w, http.StatusBadGateway, "backend request failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
