package sensor

import (
	"context"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/hydro/internal/device"
)

// Mock is synthetic source for `hardware { mock = true }` bench runs.
// Every FailEvery-th read fails, so retries are visible in logs.
type Mock struct {
	kind      string
	fields    []device.Field
	values    map[string]float64
	FailEvery uint32
	n         uint32
}

// NewMock with plausible constants per kind.
func NewMock(kind string) (*Mock, error) {
	fields, err := Fields(kind)
	if err != nil {
		return nil, err
	}
	m := &Mock{kind: kind, fields: fields, values: make(map[string]float64)}
	switch kind {
	case KindDHT22:
		m.values[FieldTemperature] = 22.4
		m.values[FieldHumidity] = 61.0
	case KindDS18B20:
		m.values[FieldTemperature] = 19.8
	case KindEC:
		m.values[FieldEC] = 1.413
		m.values[FieldTemperature] = 25
	}
	return m, nil
}

func (self *Mock) Fields() []device.Field { return self.fields }

func (self *Mock) Read(ctx context.Context) (device.Values, error) {
	n := atomic.AddUint32(&self.n, 1)
	if self.FailEvery != 0 && n%self.FailEvery == 0 {
		return nil, errors.Errorf("mock %s read #%d simulated fault", self.kind, n)
	}
	v := make(device.Values, len(self.values))
	for k, f := range self.values {
		v.Set(k, f)
	}
	return v, nil
}

// MockVoltmeter returns fixed mV, used for EC in mock mode and tests.
type MockVoltmeter struct {
	MilliVolts float64
	Err        error
}

func (self *MockVoltmeter) Voltage(ctx context.Context, channel uint8) (float64, error) {
	return self.MilliVolts, self.Err
}
