package telemetry

import (
	"github.com/temoto/hydro/internal/device"
)

type SensorEntry struct {
	SensorData   device.Values `json:"sensor_data"`
	SensorStatus string        `json:"sensor_status"`
}

func NewSensorEntry(r device.Reading) SensorEntry {
	return SensorEntry{SensorData: r.Values, SensorStatus: r.Status.String()}
}

// SensorMap is sensor name -> entry.
type SensorMap map[string]SensorEntry

// ActuatorMap is actuator name -> "ON"/"OFF".
type ActuatorMap map[string]string

// Snapshot is periodic telemetry and get_status response.
type Snapshot struct {
	SensorData     SensorMap   `json:"sensor_data"`
	ActuatorStatus ActuatorMap `json:"actuator_status"`
}
