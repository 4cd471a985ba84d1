package models

import "time"

// MicrostopRecord is a downtime interval attributed to a reason code.
type MicrostopRecord struct {
	ID        int64     `json:"microstop_ID"`
	OrderID   int64     `json:"order_id"`
	Reason    string    `json:"reason"`
	StartTime time.Time `json:"start_date"`
	EndTime   time.Time `json:"end_date"`
}

// Duration returns the interval length in seconds, floored at zero.
func (m MicrostopRecord) Duration() float64 {
	d := m.EndTime.Sub(m.StartTime).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// ParetoResult ranks reasons by accumulated duration with a cumulative percentage curve.
type ParetoResult struct {
	Labels     []string  `json:"labels"`
	Values     []float64 `json:"values"`
	Cumulative []float64 `json:"cumulative"`
}

// EmptyParetoResult returns a result with no reasons.
func EmptyParetoResult() ParetoResult {
	return ParetoResult{Labels: []string{}, Values: []float64{}, Cumulative: []float64{}}
}
