package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMicrostopDurationFlooredAtZero(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	ok := MicrostopRecord{StartTime: start, EndTime: start.Add(90 * time.Second)}
	assert.Equal(t, 90.0, ok.Duration())

	inverted := MicrostopRecord{StartTime: start, EndTime: start.Add(-time.Minute)}
	assert.Equal(t, 0.0, inverted.Duration())
}

func TestTrackedUnitsKeepsOEEEnabled(t *testing.T) {
	units := []EquipmentUnit{
		{ID: 1, Name: "Press", OEEEnabled: true},
		{ID: 2, Name: "Wash"},
		{ID: 3, Name: "Pack", OEEEnabled: true},
	}
	got := TrackedUnits(units)
	assert.Equal(t, []EquipmentUnit{units[0], units[2]}, got)
}

func TestOrderInfoSameOrder(t *testing.T) {
	a, b := int64(7), int64(8)
	assert.True(t, EmptyOrderInfo().SameOrder(EmptyOrderInfo()))
	assert.False(t, OrderInfo{OrderID: &a}.SameOrder(EmptyOrderInfo()))
	assert.False(t, OrderInfo{OrderID: &a}.SameOrder(OrderInfo{OrderID: &b}))
	same := int64(7)
	assert.True(t, OrderInfo{OrderID: &a}.SameOrder(OrderInfo{OrderID: &same}))
}
