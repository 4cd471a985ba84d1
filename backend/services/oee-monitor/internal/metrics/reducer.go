package metrics

import (
	"math"
	"sync"
	"time"

	"plantoee/backend/services/oee-monitor/internal/models"
)

// Normalize clamps v into [0,1] and rounds it to two decimals. NaN becomes 0.
func Normalize(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 1:
		return 1
	}
	return math.Round(v*100) / 100
}

// ExtractOrder reads order metadata from a payload. Flattened fields win over the
// nested processOrder; missing values fall back to N/A and a nil order id.
func ExtractOrder(data models.OEEData) models.OrderInfo {
	info := models.EmptyOrderInfo()
	var nested models.ProcessOrder
	if data.ProcessOrder != nil {
		nested = *data.ProcessOrder
	}

	info.OrderID = firstID(data.OrderID, nested.OrderID)
	info.ProcessOrderNumber = firstString(data.ProcessOrderNumber, nested.ProcessOrderNumber)
	info.MaterialNumber = firstString(data.MaterialNumber, nested.MaterialNumber)
	return info
}

// Reducer folds accepted events into the latest scalar snapshot and order metadata.
// Every Apply replaces the previous snapshot wholesale.
type Reducer struct {
	now func() time.Time

	mu       sync.RWMutex
	snapshot models.MetricsSnapshot
	order    models.OrderInfo
}

// NewReducer returns a reducer with a zero snapshot and empty order metadata.
func NewReducer(now func() time.Time) *Reducer {
	if now == nil {
		now = time.Now
	}
	return &Reducer{now: now, order: models.EmptyOrderInfo()}
}

// Apply replaces the snapshot with the normalized ratios of event.
func (r *Reducer) Apply(event models.TelemetryEvent) models.MetricsSnapshot {
	at := event.ReceivedAt
	if at.IsZero() {
		at = r.now()
	}
	d := event.Data
	snap := models.MetricsSnapshot{
		UnitID:       d.UnitID,
		Availability: Normalize(d.Availability),
		Performance:  Normalize(d.Performance),
		Quality:      Normalize(d.Quality),
		OEE:          Normalize(d.OEE),
		UpdatedAt:    at,
	}
	order := ExtractOrder(d)

	r.mu.Lock()
	r.snapshot = snap
	r.order = order
	r.mu.Unlock()
	return snap
}

// Seed replaces the snapshot and order with the bootstrap values for unitID.
func (r *Reducer) Seed(unitID int64, data models.PrepareOEEData) (models.MetricsSnapshot, models.OrderInfo) {
	snap := models.MetricsSnapshot{
		UnitID:       unitID,
		Availability: Normalize(data.Availability),
		Performance:  Normalize(data.Performance),
		Quality:      Normalize(data.Quality),
		OEE:          Normalize(data.OEE),
		UpdatedAt:    r.now(),
	}
	order := ExtractOrder(models.OEEData{ProcessOrder: data.ProcessOrder})

	r.mu.Lock()
	r.snapshot = snap
	r.order = order
	r.mu.Unlock()
	return snap, order
}

// Reset drops the snapshot and order, e.g. after deselection.
func (r *Reducer) Reset() {
	r.mu.Lock()
	r.snapshot = models.MetricsSnapshot{}
	r.order = models.EmptyOrderInfo()
	r.mu.Unlock()
}

// Snapshot returns the latest snapshot.
func (r *Reducer) Snapshot() models.MetricsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Order returns the latest order metadata.
func (r *Reducer) Order() models.OrderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.order
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return models.NotAvailable
}

// firstID treats 0 like an absent id.
func firstID(ids ...*int64) *int64 {
	for _, id := range ids {
		if id != nil && *id != 0 {
			v := *id
			return &v
		}
	}
	return nil
}
