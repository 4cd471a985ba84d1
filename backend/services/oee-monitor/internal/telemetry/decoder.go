package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"plantoee/backend/services/oee-monitor/internal/models"
)

// ErrMalformed marks frames that could not be turned into an event.
var ErrMalformed = errors.New("telemetry: malformed frame")

// DecodeError describes why a frame was rejected. errors.Is(err, ErrMalformed) holds
// for every DecodeError.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telemetry: malformed frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("telemetry: malformed frame: %s", e.Reason)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformed, e.Err}
	}
	return []error{ErrMalformed}
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// oeePayload mirrors models.OEEData with a pointer id so absence can be detected.
type oeePayload struct {
	UnitID             *int64               `json:"workcenter_id"`
	Availability       float64              `json:"availability"`
	Performance        float64              `json:"performance"`
	Quality            float64              `json:"quality"`
	OEE                float64              `json:"oee"`
	OrderID            *int64               `json:"order_id"`
	ProcessOrderNumber string               `json:"processordernumber"`
	MaterialNumber     string               `json:"materialnumber"`
	ProcessOrder       *models.ProcessOrder `json:"processOrder"`
}

// Decoder parses raw frames into telemetry events.
type Decoder struct {
	now func() time.Time
}

// NewDecoder returns a decoder stamping events with now (time.Now when nil).
func NewDecoder(now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	return &Decoder{now: now}
}

// Decode parses one frame. Frames of unknown kind decode successfully with an empty
// payload so the caller can route them to a no-op sink.
func (d *Decoder) Decode(raw []byte) (models.TelemetryEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return models.TelemetryEvent{}, &DecodeError{Reason: "invalid json", Err: err}
	}
	if env.Type == "" {
		return models.TelemetryEvent{}, &DecodeError{Reason: "missing type"}
	}

	event := models.TelemetryEvent{Kind: env.Type, ReceivedAt: d.now()}
	if env.Type != models.KindOEEData {
		return event, nil
	}

	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return models.TelemetryEvent{}, &DecodeError{Reason: "missing data"}
	}

	var payload oeePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return models.TelemetryEvent{}, &DecodeError{Reason: "invalid data", Err: err}
	}
	if payload.UnitID == nil {
		return models.TelemetryEvent{}, &DecodeError{Reason: "missing workcenter_id"}
	}

	event.Data = models.OEEData{
		UnitID:             *payload.UnitID,
		Availability:       payload.Availability,
		Performance:        payload.Performance,
		Quality:            payload.Quality,
		OEE:                payload.OEE,
		OrderID:            payload.OrderID,
		ProcessOrderNumber: payload.ProcessOrderNumber,
		MaterialNumber:     payload.MaterialNumber,
		ProcessOrder:       payload.ProcessOrder,
	}
	return event, nil
}
