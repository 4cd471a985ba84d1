package pareto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"plantoee/backend/services/oee-monitor/internal/models"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func record(id, order int64, reason string, secs int) models.MicrostopRecord {
	return models.MicrostopRecord{
		ID: id, OrderID: order, Reason: reason,
		StartTime: t0, EndTime: t0.Add(time.Duration(secs) * time.Second),
	}
}

func TestAggregatorLoadAndMutate(t *testing.T) {
	a := NewAggregator(0)
	assert.Equal(t, models.EmptyParetoResult(), a.Result())

	res := a.Load(7, []models.MicrostopRecord{record(1, 7, "Jam", 60), record(2, 7, "Tool", 30)})
	assert.Equal(t, []string{"Jam", "Tool"}, res.Labels)

	res, ok := a.Upsert(record(3, 7, "Tool", 60))
	assert.True(t, ok)
	assert.Equal(t, []string{"Tool", "Jam"}, res.Labels)
	assert.Equal(t, []float64{90, 60}, res.Values)

	res, ok = a.Upsert(record(1, 7, "Jam", 120))
	assert.True(t, ok)
	assert.Equal(t, []float64{120, 90}, res.Values)
	assert.Len(t, a.Records(), 3)

	res, ok = a.Remove(3)
	assert.True(t, ok)
	assert.Equal(t, []float64{120, 30}, res.Values)
	assert.Equal(t, res, a.Result())

	_, ok = a.Remove(99)
	assert.False(t, ok)
}

func TestAggregatorIgnoresOtherOrders(t *testing.T) {
	a := NewAggregator(5)
	_, ok := a.Upsert(record(1, 7, "Jam", 10))
	assert.False(t, ok, "no active order")

	a.Load(7, nil)
	_, ok = a.Upsert(record(1, 8, "Jam", 10))
	assert.False(t, ok)
	assert.Empty(t, a.Records())
}

func TestAggregatorUpsertMovedToOtherOrderRemoves(t *testing.T) {
	a := NewAggregator(5)
	a.Load(7, []models.MicrostopRecord{record(1, 7, "Jam", 30), record(2, 7, "Tool", 90)})

	res, ok := a.Upsert(record(2, 8, "Tool", 90))
	assert.True(t, ok)
	assert.Equal(t, []string{"Jam"}, res.Labels)
	assert.Equal(t, []float64{100}, res.Cumulative)
	assert.Len(t, a.Records(), 1)
	assert.Equal(t, res, a.Result())

	_, ok = a.Upsert(record(2, 8, "Tool", 90))
	assert.False(t, ok, "already gone")
}

func TestAggregatorClear(t *testing.T) {
	a := NewAggregator(5)
	a.Load(7, []models.MicrostopRecord{record(1, 7, "Jam", 60)})
	order, active := a.OrderID()
	assert.True(t, active)
	assert.Equal(t, int64(7), order)

	assert.Equal(t, models.EmptyParetoResult(), a.Clear())
	_, active = a.OrderID()
	assert.False(t, active)
	assert.Zero(t, a.Grouped().Len())
}

func TestAggregatorLoadCopiesInput(t *testing.T) {
	a := NewAggregator(5)
	in := []models.MicrostopRecord{record(1, 7, "Jam", 60)}
	a.Load(7, in)
	in[0].Reason = "changed"
	assert.Equal(t, "Jam", a.Records()[0].Reason)
}
