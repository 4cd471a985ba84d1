package models

// Dataset is one category of a stacked chart.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// TimeSeriesFrame is a stacked time series: one label per bucket and one value per
// bucket in every dataset.
type TimeSeriesFrame struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// EmptyFrame returns a frame with no buckets.
func EmptyFrame() TimeSeriesFrame {
	return TimeSeriesFrame{Labels: []string{}, Datasets: []Dataset{}}
}

// PrepareOEEData is the bootstrap payload for a unit: current scalars, the running
// order and the stacked chart source series.
type PrepareOEEData struct {
	Availability float64       `json:"availability"`
	Performance  float64       `json:"performance"`
	Quality      float64       `json:"quality"`
	OEE          float64       `json:"oee"`
	ProcessOrder *ProcessOrder `json:"processOrder,omitempty"`
	Labels       []string      `json:"labels"`
	Datasets     []Dataset     `json:"datasets"`
}
