package ws

import "encoding/json"

// Message types pushed to viewers.
const (
	TypeOrder      = "order"
	TypeMetrics    = "metrics"
	TypeTimeSeries = "timeseries"
	TypePareto     = "pareto"
	TypeAlert      = "alert"
	TypeStream     = "stream"
)

// replayed in this order to new viewers
var latestTypes = []string{TypeStream, TypeOrder, TypeMetrics, TypeTimeSeries, TypePareto}

// Message is the envelope of every pushed frame.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Encode marshals a message.
func Encode(msgType string, payload any) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Payload: payload})
}
