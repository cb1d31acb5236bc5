package device

import (
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/hydro/log2"
)

// Driver is the hardware side of a binary output, e.g. one relay GPIO line.
// Set must be safe to repeat with the same value.
type Driver interface {
	Set(on bool) error
}

type ActuatorState uint32

const (
	ActuatorOff ActuatorState = iota
	ActuatorOn
)

func (s ActuatorState) String() string {
	switch s {
	case ActuatorOff:
		return "OFF"
	case ActuatorOn:
		return "ON"
	}
	return fmt.Sprintf("ActuatorState(%d)", uint32(s))
}

// Actuator is binary on/off output: pump, fan, sensor power rail.
// State is the last successfully issued command, never read back from hardware.
type Actuator struct {
	name  string
	log   *log2.Log
	mu    sync.Mutex
	drv   Driver
	state ActuatorState
}

func NewActuator(name string, drv Driver, log *log2.Log) *Actuator {
	if drv == nil {
		panic(fmt.Sprintf("code error actuator=%s driver=nil", name))
	}
	return &Actuator{name: name, drv: drv, log: log}
}

func (a *Actuator) Name() string { return a.name }

func (a *Actuator) Activate() error   { return a.set(ActuatorOn) }
func (a *Actuator) Deactivate() error { return a.set(ActuatorOff) }

func (a *Actuator) State() ActuatorState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actuator) set(s ActuatorState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.drv.Set(s == ActuatorOn); err != nil {
		return errors.Annotatef(err, "actuator=%s set=%s", a.name, s)
	}
	if a.state != s {
		a.log.Debugf("actuator=%s %s -> %s", a.name, a.state, s)
	}
	a.state = s
	return nil
}
