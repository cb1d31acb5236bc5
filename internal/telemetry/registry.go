// Package telemetry aggregates sensor readings and actuator states into wire snapshots.
package telemetry

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/hydro/helpers"
	"github.com/temoto/hydro/internal/device"
	"github.com/temoto/hydro/log2"
)

const SelectorAll = "all"

// Registry holds sensors and exposed actuators in registration order.
// Sensor power rails are private to their sensor and not listed in ActuatorStatus,
// but DeactivateAll covers them too.
type Registry struct {
	log *log2.Log

	mu            sync.RWMutex
	sensors       []*device.Sensor
	sensorIndex   map[string]*device.Sensor
	actuators     []*device.Actuator
	actuatorIndex map[string]*device.Actuator
}

func NewRegistry(log *log2.Log) *Registry {
	return &Registry{
		log:           log,
		sensorIndex:   make(map[string]*device.Sensor),
		actuatorIndex: make(map[string]*device.Actuator),
	}
}

func (r *Registry) AddActuator(a *device.Actuator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actuatorIndex[a.Name()]; ok {
		return errors.AlreadyExistsf("actuator=%s", a.Name())
	}
	r.actuatorIndex[a.Name()] = a
	r.actuators = append(r.actuators, a)
	return nil
}

func (r *Registry) AddSensor(s *device.Sensor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sensorIndex[s.Name()]; ok {
		return errors.AlreadyExistsf("sensor=%s", s.Name())
	}
	if s.Name() == SelectorAll {
		return errors.NotValidf("sensor name %q", SelectorAll)
	}
	r.sensorIndex[s.Name()] = s
	r.sensors = append(r.sensors, s)
	return nil
}

// Actuator returns NotFound error for unknown name.
func (r *Registry) Actuator(name string) (*device.Actuator, error) {
	r.mu.RLock()
	a, ok := r.actuatorIndex[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFound(nil, "Unrecognized actuator: "+name)
	}
	return a, nil
}

// Sensor returns NotFound error with wire friendly message for unknown name.
func (r *Registry) Sensor(name string) (*device.Sensor, error) {
	r.mu.RLock()
	s, ok := r.sensorIndex[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFound(nil, "Unrecognized sensor: "+name)
	}
	return s, nil
}

func (r *Registry) Sensors() []*device.Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*device.Sensor(nil), r.sensors...)
}

func (r *Registry) Actuators() []*device.Actuator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*device.Actuator(nil), r.actuators...)
}

// Gather reads selected sensors from hardware.
// selector is sensor name, or "all"/"" for every sensor in registration order.
// Unknown name fails before any hardware access.
func (r *Registry) Gather(ctx context.Context, selector string) (SensorMap, error) {
	var list []*device.Sensor
	if selector == "" || selector == SelectorAll {
		list = r.Sensors()
	} else {
		s, err := r.Sensor(selector)
		if err != nil {
			return nil, err
		}
		list = []*device.Sensor{s}
	}

	result := make(SensorMap, len(list))
	for _, s := range list {
		reading := s.Read(ctx)
		r.log.Debugf("gather %s", reading.String())
		result[s.Name()] = NewSensorEntry(reading)
	}
	return result, nil
}

// ActuatorStatus is pure read of last commanded states, no hardware access.
func (r *Registry) ActuatorStatus() ActuatorMap {
	list := r.Actuators()
	result := make(ActuatorMap, len(list))
	for _, a := range list {
		result[a.Name()] = a.State().String()
	}
	return result
}

// Snapshot is full telemetry: every sensor and every actuator.
func (r *Registry) Snapshot(ctx context.Context) Snapshot {
	sensors, _ := r.Gather(ctx, SelectorAll) // "all" never fails
	return Snapshot{
		SensorData:     sensors,
		ActuatorStatus: r.ActuatorStatus(),
	}
}

// DeactivateAll turns off every actuator and sensor power rail.
// Tries all, returns folded errors.
func (r *Registry) DeactivateAll() error {
	errs := make([]error, 0)
	for _, a := range r.Actuators() {
		if err := a.Deactivate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range r.Sensors() {
		if err := s.Power().Deactivate(); err != nil {
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}
