package device

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/hydro/log2"
)

var dhtFields = []Field{PositiveField("temperature"), PositiveField("humidity")}

type senv struct {
	drv    *MockDriver
	power  *Actuator
	sensor *Sensor
	calls  int32
}

func newSenv(t testing.TB, policy RetryPolicy, fields []Field, f func(n int) (Values, error)) *senv {
	log := log2.NewTest(t, log2.LDebug)
	env := &senv{drv: &MockDriver{}}
	env.power = NewActuator("power", env.drv, log)
	src := SourceFunc{Fs: fields, F: func(ctx context.Context) (Values, error) {
		n := atomic.AddInt32(&env.calls, 1)
		return f(int(n))
	}}
	var err error
	env.sensor, err = NewSensor("test", env.power, src, policy, log)
	require.NoError(t, err)
	return env
}

func dht(temp, hum float64) Values {
	v := Values{}
	v.Set("temperature", temp)
	v.Set("humidity", hum)
	return v
}

func TestSensorRetryThenOk(t *testing.T) {
	t.Parallel()

	env := newSenv(t, RetryPolicy{Attempts: 3}, dhtFields, func(n int) (Values, error) {
		if n < 3 {
			return Values{"temperature": nil, "humidity": nil}, nil
		}
		return dht(21.5, 55.0), nil
	})
	assert.Equal(t, StatusUninitialized, env.sensor.Status())

	r := env.sensor.Read(context.Background())
	require.Equal(t, StatusOk, r.Status, r.String())
	assert.True(t, r.Ok())
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&env.calls))
	temp, _ := r.Values.Get("temperature")
	hum, _ := r.Values.Get("humidity")
	assert.Equal(t, 21.5, temp)
	assert.Equal(t, 55.0, hum)
	assert.Equal(t, StatusOk, env.sensor.Status())
	assert.Equal(t, ActuatorOff, env.power.State())
	assert.Equal(t, []bool{true, false}, env.drv.Writes(), "one power cycle per read")
}

func TestSensorExhausted(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 5} {
		n := n
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			t.Parallel()
			env := newSenv(t, RetryPolicy{Attempts: n}, dhtFields, func(int) (Values, error) {
				return nil, fmt.Errorf("bus fault")
			})
			r := env.sensor.Read(context.Background())
			assert.Equal(t, StatusError, r.Status)
			assert.Equal(t, n, r.Attempts)
			assert.Equal(t, int32(n), atomic.LoadInt32(&env.calls))
			assert.Equal(t, ActuatorOff, env.power.State())
			assert.False(t, env.drv.Last())
			for _, f := range dhtFields {
				p, ok := r.Values[f.Name]
				assert.True(t, ok, "field=%s must be present as null", f.Name)
				assert.Nil(t, p)
			}
		})
	}
}

func TestSensorPanicIsFailedAttempt(t *testing.T) {
	t.Parallel()

	env := newSenv(t, RetryPolicy{Attempts: 2}, dhtFields, func(n int) (Values, error) {
		if n == 1 {
			panic("i2c gone")
		}
		return dht(20, 40), nil
	})
	r := env.sensor.Read(context.Background())
	assert.Equal(t, StatusOk, r.Status)
	assert.Equal(t, 2, r.Attempts)
	assert.Equal(t, ActuatorOff, env.power.State())
}

// Ok iff every required field is present and plausible.
func TestSensorPlausible(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		values Values
		expect Status
	}{
		{"ok", dht(21.5, 55), StatusOk},
		{"zero", dht(0, 55), StatusError},
		{"negative", dht(21.5, -1), StatusError},
		{"nan", dht(math.NaN(), 55), StatusError},
		{"inf", dht(21.5, math.Inf(1)), StatusError},
		{"missing", Values{"temperature": dht(1, 1)["temperature"]}, StatusError},
		{"nil", Values{"temperature": nil, "humidity": nil}, StatusError},
		{"empty", nil, StatusError},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			env := newSenv(t, RetryPolicy{Attempts: 1}, dhtFields, func(int) (Values, error) { return c.values, nil })
			r := env.sensor.Read(context.Background())
			assert.Equal(t, c.expect, r.Status)
			for _, f := range dhtFields {
				v, ok := r.Values.Get(f.Name)
				if c.expect == StatusOk {
					assert.True(t, ok)
					assert.True(t, v > 0)
				} else {
					assert.False(t, ok, "field=%s must be null on error", f.Name)
				}
			}
		})
	}
}

func TestSensorDropsExtraValues(t *testing.T) {
	t.Parallel()

	env := newSenv(t, RetryPolicy{Attempts: 1}, dhtFields, func(int) (Values, error) {
		v := dht(20, 50)
		v.Set("debug_raw", 1234)
		return v, nil
	})
	r := env.sensor.Read(context.Background())
	require.Equal(t, StatusOk, r.Status)
	assert.Len(t, r.Values, 2)
}

func TestSensorKeepsSourceValues(t *testing.T) {
	t.Parallel()

	// source reuses one map between reads
	shared := dht(20, 50)
	shared.Set("debug_raw", 1234)
	env := newSenv(t, RetryPolicy{Attempts: 1}, dhtFields, func(int) (Values, error) {
		return shared, nil
	})
	for i := 0; i < 2; i++ {
		r := env.sensor.Read(context.Background())
		require.Equal(t, StatusOk, r.Status)
		assert.Len(t, r.Values, 2)
		_, ok := shared.Get("debug_raw")
		assert.True(t, ok, "read=%d source map modified", i+1)
		assert.Len(t, shared, 3)
	}
}

func TestSensorPowerOnFailure(t *testing.T) {
	t.Parallel()

	env := newSenv(t, RetryPolicy{Attempts: 3}, dhtFields, func(int) (Values, error) { return dht(20, 50), nil })
	env.drv.SetErr(fmt.Errorf("gpio busy"))
	r := env.sensor.Read(context.Background())
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, 0, r.Attempts)
	assert.Equal(t, int32(0), atomic.LoadInt32(&env.calls))
	// power off still attempted
	assert.Equal(t, []bool{true, false}, env.drv.Writes())
}

func TestSensorSettleCancel(t *testing.T) {
	t.Parallel()

	env := newSenv(t, RetryPolicy{Attempts: 1, Settle: time.Hour}, dhtFields, func(int) (Values, error) { return dht(20, 50), nil })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r := env.sensor.Read(ctx)
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, int32(0), atomic.LoadInt32(&env.calls))
	assert.Equal(t, ActuatorOff, env.power.State())
}

func TestSensorStatusDuringRead(t *testing.T) {
	t.Parallel()

	var env *senv
	var seen Status
	env = newSenv(t, RetryPolicy{Attempts: 1, Settle: time.Millisecond}, dhtFields, func(int) (Values, error) {
		seen = env.sensor.Status()
		return dht(20, 50), nil
	})
	r := env.sensor.Read(context.Background())
	assert.Equal(t, StatusReading, seen)
	assert.Equal(t, StatusOk, r.Status)
	assert.Equal(t, StatusOk, env.sensor.Status())
}

func TestSensorReadSerialized(t *testing.T) {
	t.Parallel()

	var active, maxActive int32
	env := newSenv(t, RetryPolicy{Attempts: 1}, dhtFields, func(int) (Values, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		return dht(20, 50), nil
	})
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.sensor.Read(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	assert.Equal(t, ActuatorOff, env.power.State())
}

func TestNewSensorInvalid(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	power := NewActuator("p", &MockDriver{}, log)
	src := SourceFunc{Fs: dhtFields, F: func(context.Context) (Values, error) { return nil, nil }}
	cases := []struct {
		name   string
		power  *Actuator
		src    Source
		policy RetryPolicy
	}{
		{"attempts=0", power, src, RetryPolicy{Attempts: 0}},
		{"attempts<0", power, src, RetryPolicy{Attempts: -1}},
		{"delay<0", power, src, RetryPolicy{Attempts: 1, Delay: -time.Second}},
		{"settle<0", power, src, RetryPolicy{Attempts: 1, Settle: -time.Second}},
		{"power=nil", nil, src, RetryPolicy{Attempts: 1}},
		{"source=nil", power, nil, RetryPolicy{Attempts: 1}},
		{"no-fields", power, SourceFunc{}, RetryPolicy{Attempts: 1}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			_, err := NewSensor("s", c.power, c.src, c.policy, log)
			require.Error(t, err)
			assert.True(t, errors.IsNotValid(errors.Cause(err)), errors.ErrorStack(err))
		})
	}
}
