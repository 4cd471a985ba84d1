package pipeline

import "time"

// Severity of an Alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
)

// MessageConnectionLost is the actionable message shown once reconnects are exhausted.
const MessageConnectionLost = "connection lost, please retry"

// Alert is a user-facing notification.
type Alert struct {
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}
