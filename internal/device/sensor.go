package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/hydro/helpers"
	"github.com/temoto/hydro/log2"
)

// Source is raw value reader of one physical sensor, e.g. bus transaction or sysfs file.
// Error means failed attempt, retry may help.
type Source interface {
	Fields() []Field
	Read(ctx context.Context) (Values, error)
}

// RetryPolicy is immutable per sensor.
// Worst case Read duration is Settle + Attempts*Delay.
type RetryPolicy struct {
	Attempts int           // >=1
	Delay    time.Duration // between attempts
	Settle   time.Duration // after power on, before first attempt
}

func (p RetryPolicy) Validate() error {
	if p.Attempts < 1 {
		return errors.NotValidf("retry attempts=%d (must be >=1)", p.Attempts)
	}
	if p.Delay < 0 {
		return errors.NotValidf("retry delay=%v", p.Delay)
	}
	if p.Settle < 0 {
		return errors.NotValidf("retry settle=%v", p.Settle)
	}
	return nil
}

func (p RetryPolicy) String() string {
	return fmt.Sprintf("attempts=%d delay=%v settle=%v", p.Attempts, p.Delay, p.Settle)
}

// Sensor is read state machine shared by all sensor kinds:
// power on, settle, up to N attempts, unconditional power off.
// Every Read measures again from hardware, nothing is cached.
// Concurrent Read calls on the same Sensor are serialized.
type Sensor struct {
	name   string
	log    *log2.Log
	power  *Actuator
	source Source
	fields []Field
	policy RetryPolicy

	readLock sync.Mutex
	status   uint32 // atomic Status
}

func NewSensor(name string, power *Actuator, source Source, policy RetryPolicy, log *log2.Log) (*Sensor, error) {
	if err := policy.Validate(); err != nil {
		return nil, errors.Annotatef(err, "sensor=%s", name)
	}
	if power == nil {
		return nil, errors.NotValidf("sensor=%s power actuator=nil", name)
	}
	if source == nil {
		return nil, errors.NotValidf("sensor=%s source=nil", name)
	}
	fields := source.Fields()
	if len(fields) == 0 {
		return nil, errors.NotValidf("sensor=%s source without fields", name)
	}
	return &Sensor{
		name:   name,
		log:    log,
		power:  power,
		source: source,
		fields: fields,
		policy: policy,
	}, nil
}

func (s *Sensor) Name() string        { return s.name }
func (s *Sensor) Power() *Actuator    { return s.power }
func (s *Sensor) Policy() RetryPolicy { return s.policy }

// Status of current or last finished Read.
func (s *Sensor) Status() Status { return Status(atomic.LoadUint32(&s.status)) }

func (s *Sensor) setStatus(st Status) { atomic.StoreUint32(&s.status, uint32(st)) }

func (s *Sensor) Read(ctx context.Context) Reading {
	s.readLock.Lock()
	defer s.readLock.Unlock()

	r := Reading{Sensor: s.name, Values: nullValues(s.fields), Status: StatusError}
	s.setStatus(StatusPoweringOn)
	if err := s.power.Activate(); err != nil {
		s.log.Errorf("sensor=%s power on err=%v", s.name, err)
		s.powerOff()
		s.setStatus(r.Status)
		return r
	}

	if s.policy.Settle > 0 {
		if err := helpers.SleepContext(ctx, s.policy.Settle); err != nil {
			s.log.Debugf("sensor=%s settle interrupted err=%v", s.name, err)
			s.powerOff()
			s.setStatus(r.Status)
			return r
		}
	}

	s.setStatus(StatusReading)
	for attempt := 1; attempt <= s.policy.Attempts; attempt++ {
		r.Attempts = attempt
		values, err := s.readOnce(ctx)
		if err == nil {
			checked, reason := s.check(values)
			if checked != nil {
				r.Values = checked
				r.Status = StatusOk
				break
			}
			err = errors.Errorf("invalid value %s", reason)
		}
		s.log.Debugf("sensor=%s attempt=%d/%d err=%v", s.name, attempt, s.policy.Attempts, err)

		if attempt < s.policy.Attempts {
			if sleepErr := helpers.SleepContext(ctx, s.policy.Delay); sleepErr != nil {
				break
			}
		}
	}

	// power off regardless of outcome
	s.powerOff()
	if r.Status != StatusOk {
		s.log.Errorf("sensor=%s read failed attempts=%d", s.name, r.Attempts)
	}
	s.setStatus(r.Status)
	return r
}

// readOnce converts driver panic into failed attempt.
func (s *Sensor) readOnce(ctx context.Context) (v Values, err error) {
	defer func() {
		if x := recover(); x != nil {
			v, err = nil, errors.Errorf("source panic: %v", x)
		}
	}()
	v, err = s.source.Read(ctx)
	return v, errors.Annotatef(err, "sensor=%s", s.name)
}

// check returns copy with only required fields, nil and reason if any is missing or implausible.
// Source owned map is not modified.
func (s *Sensor) check(values Values) (Values, string) {
	result := make(Values, len(s.fields))
	for _, f := range s.fields {
		v, ok := values.Get(f.Name)
		if !ok {
			return nil, f.Name + "=null"
		}
		if !f.Check(v) {
			return nil, fmt.Sprintf("%s=%g", f.Name, v)
		}
		result.Set(f.Name, v)
	}
	return result, ""
}

func (s *Sensor) powerOff() {
	if err := s.power.Deactivate(); err != nil {
		s.log.Errorf("CRITICAL sensor=%s power off err=%v", s.name, err)
	}
}
