package models

import "time"

// KindOEEData is the only telemetry kind that carries metrics.
const KindOEEData = "OEEData"

// NotAvailable is shown when order metadata is missing.
const NotAvailable = "N/A"

// TelemetryEvent is a decoded inbound frame.
type TelemetryEvent struct {
	Kind       string
	Data       OEEData
	ReceivedAt time.Time
}

// OEEData is the payload of an OEEData frame. Ratios default to 0 when absent.
type OEEData struct {
	UnitID             int64         `json:"workcenter_id"`
	Availability       float64       `json:"availability"`
	Performance        float64       `json:"performance"`
	Quality            float64       `json:"quality"`
	OEE                float64       `json:"oee"`
	OrderID            *int64        `json:"order_id,omitempty"`
	ProcessOrderNumber string        `json:"processordernumber,omitempty"`
	MaterialNumber     string        `json:"materialnumber,omitempty"`
	ProcessOrder       *ProcessOrder `json:"processOrder,omitempty"`
}

// ProcessOrder is the nested order structure some producers send instead of flat fields.
type ProcessOrder struct {
	OrderID            *int64 `json:"order_id,omitempty"`
	ProcessOrderNumber string `json:"ProcessOrderNumber,omitempty"`
	MaterialNumber     string `json:"MaterialNumber,omitempty"`
}

// MetricsSnapshot is the latest availability/performance/quality/OEE reading,
// each clamped to [0,1] and rounded to two decimals.
type MetricsSnapshot struct {
	UnitID       int64     `json:"workcenter_id"`
	Availability float64   `json:"availability"`
	Performance  float64   `json:"performance"`
	Quality      float64   `json:"quality"`
	OEE          float64   `json:"oee"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OrderInfo is the order metadata attached to the active unit.
type OrderInfo struct {
	OrderID            *int64 `json:"order_id"`
	ProcessOrderNumber string `json:"process_order_number"`
	MaterialNumber     string `json:"material_number"`
}

// EmptyOrderInfo returns the sentinel metadata used before any order is known.
func EmptyOrderInfo() OrderInfo {
	return OrderInfo{ProcessOrderNumber: NotAvailable, MaterialNumber: NotAvailable}
}

// SameOrder reports whether both infos point at the same order id.
func (o OrderInfo) SameOrder(other OrderInfo) bool {
	switch {
	case o.OrderID == nil && other.OrderID == nil:
		return true
	case o.OrderID == nil || other.OrderID == nil:
		return false
	default:
		return *o.OrderID == *other.OrderID
	}
}
