package pareto

import (
	"sync"

	"plantoee/backend/services/oee-monitor/internal/models"
)

// Aggregator holds the microstops of the active order and the Pareto result derived
// from them. Every mutation recomputes the result from scratch.
type Aggregator struct {
	topN int

	mu      sync.Mutex
	orderID int64
	active  bool
	records []models.MicrostopRecord
	result  models.ParetoResult
}

// NewAggregator returns an aggregator with no active order.
func NewAggregator(topN int) *Aggregator {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Aggregator{topN: topN, result: models.EmptyParetoResult()}
}

// Load replaces the microstop set with the records of orderID.
func (a *Aggregator) Load(orderID int64, records []models.MicrostopRecord) models.ParetoResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orderID = orderID
	a.active = true
	a.records = append([]models.MicrostopRecord(nil), records...)
	return a.recomputeLocked()
}

// Clear drops the active order.
func (a *Aggregator) Clear() models.ParetoResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orderID = 0
	a.active = false
	a.records = nil
	a.result = models.EmptyParetoResult()
	return a.result
}

// Upsert adds rec or replaces the record with the same id. A held record moved to
// another order is removed. Other records of other orders are ignored and reported
// with ok=false.
func (a *Aggregator) Upsert(rec models.MicrostopRecord) (models.ParetoResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return a.result, false
	}
	if rec.OrderID != a.orderID {
		if rec.ID != 0 && a.removeLocked(rec.ID) {
			return a.recomputeLocked(), true
		}
		return a.result, false
	}
	replaced := false
	for i := range a.records {
		if rec.ID != 0 && a.records[i].ID == rec.ID {
			a.records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		a.records = append(a.records, rec)
	}
	return a.recomputeLocked(), true
}

// Remove deletes the record with id. ok is false when no such record is held.
func (a *Aggregator) Remove(id int64) (models.ParetoResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.removeLocked(id) {
		return a.result, false
	}
	return a.recomputeLocked(), true
}

func (a *Aggregator) removeLocked(id int64) bool {
	for i := range a.records {
		if a.records[i].ID == id {
			a.records = append(a.records[:i], a.records[i+1:]...)
			return true
		}
	}
	return false
}

// Result returns the latest result.
func (a *Aggregator) Result() models.ParetoResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// OrderID returns the active order.
func (a *Aggregator) OrderID() (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.orderID, a.active
}

// Records returns a copy of the active order's microstops.
func (a *Aggregator) Records() []models.MicrostopRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.MicrostopRecord(nil), a.records...)
}

// Grouped returns the reason durations of the active order.
func (a *Aggregator) Grouped() *GroupedDurations {
	a.mu.Lock()
	defer a.mu.Unlock()
	return GroupByReason(a.records)
}

func (a *Aggregator) recomputeLocked() models.ParetoResult {
	a.result = Recompute(GroupByReason(a.records), a.topN)
	return a.result
}
