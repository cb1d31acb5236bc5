package device

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type Status uint32

const (
	StatusUninitialized Status = iota // no read yet
	StatusPoweringOn                  // power rail on, settling
	StatusReading                     // attempts in progress
	StatusOk                          // all fields present and plausible
	StatusError                       // retries exhausted or power failure
)

// String is the wire form of sensor_status.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "Initialized"
	case StatusPoweringOn:
		return "Powered On"
	case StatusReading:
		return "Reading"
	case StatusOk:
		return "OK"
	case StatusError:
		return "Error"
	}
	return fmt.Sprintf("Status(%d)", uint32(s))
}

// Values maps field name to measured value, nil means absent.
type Values map[string]*float64

func (v Values) Get(name string) (float64, bool) {
	p, ok := v[name]
	if !ok || p == nil {
		return 0, false
	}
	return *p, true
}

func (v Values) Set(name string, f float64) { v[name] = &f }

// Field is one required value of a sensor and its plausibility predicate.
type Field struct {
	Name      string
	Plausible func(float64) bool
}

func (f Field) Check(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if f.Plausible == nil {
		return Positive(v)
	}
	return f.Plausible(v)
}

// Positive is default plausibility: temperature, humidity, EC are all strictly positive.
func Positive(v float64) bool { return v > 0 }

func PositiveField(name string) Field { return Field{Name: name, Plausible: Positive} }

// Reading is result of one Sensor.Read call.
// Status=Ok iff every field is present and plausible, otherwise all values are nil.
type Reading struct {
	Sensor   string
	Values   Values
	Status   Status
	Attempts int
}

func (r Reading) Ok() bool { return r.Status == StatusOk }

func (r Reading) String() string {
	return fmt.Sprintf("sensor=%s status=%s attempts=%d values=%s", r.Sensor, r.Status, r.Attempts, r.Values)
}

func (v Values) String() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i != 0 {
			b.WriteByte(' ')
		}
		if p := v[k]; p == nil {
			fmt.Fprintf(&b, "%s=null", k)
		} else {
			fmt.Fprintf(&b, "%s=%g", k, *p)
		}
	}
	b.WriteByte('}')
	return b.String()
}

func nullValues(fields []Field) Values {
	v := make(Values, len(fields))
	for _, f := range fields {
		v[f.Name] = nil
	}
	return v
}
