package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"plantoee/backend/services/oee-monitor/internal/stream"
)

// Reasons for dropped events.
const (
	DropOtherUnit   = "other_unit"
	DropNoSelection = "no_selection"
	DropUnknownKind = "unknown_kind"
)

// Metrics exposes pipeline counters to prometheus. It implements telemetry.Recorder.
type Metrics struct {
	frames     prometheus.Counter
	decodeErrs prometheus.Counter
	dropped    *prometheus.CounterVec
	reconnects prometheus.Counter
	state      prometheus.Gauge
	pareto     prometheus.Counter
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oee_stream_frames_total",
			Help: "Raw frames received from the telemetry stream.",
		}),
		decodeErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oee_stream_decode_errors_total",
			Help: "Frames rejected as malformed.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oee_events_dropped_total",
			Help: "Decoded events that did not reach the reducers.",
		}, []string{"reason"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oee_stream_reconnects_total",
			Help: "Reconnect attempts scheduled after a close.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oee_stream_state",
			Help: "Connection state: 0 disconnected, 1 connecting, 2 open, 3 retry pending, 4 exhausted.",
		}),
		pareto: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oee_pareto_recomputes_total",
			Help: "Pareto results recomputed after the microstop set changed.",
		}),
	}
	reg.MustRegister(m.frames, m.decodeErrs, m.dropped, m.reconnects, m.state, m.pareto)
	return m
}

func (m *Metrics) FrameReceived() { m.frames.Inc() }

func (m *Metrics) FrameRejected() { m.decodeErrs.Inc() }

func (m *Metrics) FrameIgnored(string) { m.dropped.WithLabelValues(DropUnknownKind).Inc() }

// EventDropped counts an event filtered out before the reducers.
func (m *Metrics) EventDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

// ReconnectScheduled counts a scheduled reconnect.
func (m *Metrics) ReconnectScheduled() {
	m.reconnects.Inc()
}

// StreamState records the current connection state.
func (m *Metrics) StreamState(s stream.State) {
	m.state.Set(float64(s))
}

// ParetoRecomputed counts a Pareto recompute.
func (m *Metrics) ParetoRecomputed() {
	m.pareto.Inc()
}
