package tele

import (
	"github.com/temoto/hydro/internal/telemetry"
)

const (
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
	ActionGetReading = "get_reading"
	ActionGetStatus  = "get_status"

	ReadingReceived = "reading_received"
	ReadingError    = "error"
)

// Command is inbound message.
type Command struct {
	Action   string `json:"action"`
	Actuator string `json:"actuator,omitempty"`
	Sensor   string `json:"sensor,omitempty"`
}

// ErrorResponse is sent back on malformed inbound message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// ReadingResponse answers get_reading, also reports actuator hardware errors.
type ReadingResponse struct {
	Status  string              `json:"status"`
	Sensor  string              `json:"sensor,omitempty"`
	Data    telemetry.SensorMap `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
}
