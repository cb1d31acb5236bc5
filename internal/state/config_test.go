package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/hydro/hardware/sensor"
	"github.com/temoto/hydro/internal/device"
	"github.com/temoto/hydro/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, context.Context)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, ctx context.Context) {
			g := GetGlobal(ctx)
			assert.Len(t, g.Registry.Sensors(), 0)
			assert.Nil(t, g.Tele)
		}, ""},

		{"sensor-defaults", `
hardware {
	mock = true
	sensor "DHT22" { kind = "dht22" }
	sensor "DS18B20" { kind = "ds18b20" attempts = 7 }
}`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				s, err := g.Registry.Sensor("DHT22")
				require.NoError(t, err)
				assert.Equal(t, device.RetryPolicy{Attempts: 3, Delay: 2 * time.Second, Settle: 2 * time.Second}, s.Policy())
				s, err = g.Registry.Sensor("DS18B20")
				require.NoError(t, err)
				assert.Equal(t, 7, s.Policy().Attempts)
				assert.Equal(t, time.Second, s.Policy().Delay)
				assert.Equal(t, device.StatusUninitialized, s.Status())
			}, ""},

		{"mock-hardware", `
hardware {
	mock = true
	actuator "EC_Pump" { pin = 18 }
	actuator "Light" { pin = 23 active_low = true }
	sensor "DHT22" { kind = "dht22" power_pin = 17 delay_ms = 1 settle_ms = 1 }
	sensor "EC" { kind = "ec" power_pin = 22 delay_ms = 1 settle_ms = 1 }
}`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, map[string]string{"EC_Pump": "OFF", "Light": "OFF"}, map[string]string(g.Registry.ActuatorStatus()))

				data, err := g.Registry.Gather(ctx, "all")
				require.NoError(t, err)
				require.Len(t, data, 2)
				assert.Equal(t, "OK", data["DHT22"].SensorStatus)
				assert.Equal(t, "OK", data["EC"].SensorStatus)
				ecValue, ok := data["EC"].SensorData.Get(sensor.FieldEC)
				require.True(t, ok)
				assert.InDelta(t, 1.413, ecValue, 1e-9)

				a, err := g.Registry.Actuator("EC_Pump")
				require.NoError(t, err)
				require.NoError(t, a.Activate())
				assert.Equal(t, "ON", g.Registry.ActuatorStatus()["EC_Pump"])
				g.Shutdown()
				assert.Equal(t, "OFF", g.Registry.ActuatorStatus()["EC_Pump"])

				assert.Equal(t, []string{"EC"}, g.ECSensorNames())
				_, err = g.ECSource("EC")
				assert.NoError(t, err)
				_, err = g.ECSource("DHT22")
				assert.True(t, errors.IsNotFound(err))
			}, ""},

		{"mock-fail", `
hardware {
	mock = true
	sensor "DS18B20" { kind = "ds18b20" attempts = 2 delay_ms = 1 settle_ms = 1 mock_fail_every = 1 }
}`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				data, err := g.Registry.Gather(ctx, "DS18B20")
				require.NoError(t, err)
				assert.Equal(t, "Error", data["DS18B20"].SensorStatus)
				v, ok := data["DS18B20"].SensorData[sensor.FieldTemperature]
				assert.True(t, ok)
				assert.Nil(t, v)
			}, ""},

		{"tele", `
tele {
	enabled = true
	url = "ws://127.0.0.1:1/ws/pi"
	interval_sec = 5
}`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				require.NotNil(t, g.Tele)
				assert.Equal(t, 5*time.Second, g.Config.Tele.Interval())
				assert.Equal(t, 10*time.Second, g.Config.Tele.RetryMin())
				assert.Equal(t, 60*time.Second, g.Config.Tele.RetryMax())
			}, ""},

		{"include-normalize", `
tele { interval_sec = 1 }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "interval-7" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, 7, g.Config.Tele.IntervalSec)
			}, ""},

		{"include-overwrites", `
tele { interval_sec = 1 }
include "interval-7" {}`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, 7, g.Config.Tele.IntervalSec)
			}, ""},

		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-duplicate-actuator", `
hardware {
	actuator "EC_Pump" { pin = 18 }
	actuator "EC_Pump" { pin = 19 }
}`, nil, "duplicate actuator=EC_Pump"},
		{"error-duplicate-sensor", `
hardware {
	sensor "T" { kind = "ds18b20" }
	sensor "T" { kind = "ds18b20" }
}`, nil, "duplicate sensor=T"},
		{"error-kind", `hardware { sensor "pH" { kind = "ph4502c" } }`, nil, `sensor=pH kind="ph4502c"`},
		{"error-attempts", `hardware { sensor "T" { kind = "ds18b20" attempts = -1 } }`, nil, "sensor=T attempts=-1"},
		{"error-adc-channel", `hardware { sensor "EC" { kind = "ec" adc_channel = 4 } }`, nil, "sensor=EC adc_channel=4"},
		{"error-tele-url", `tele { enabled = true }`, nil, "tele url empty"},
		{"error-tele-transport", `tele { enabled = true url = "x" transport = "carrier-pigeon" }`, nil, "tele transport=carrier-pigeon"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			ctx, g := NewContext(log)

			fs := NewMockFullReader(map[string]string{
				"test-inline":  "persist { root = \"" + t.TempDir() + "\" }\n" + c.input,
				"empty":        "",
				"interval-7":   "tele { interval_sec = 7 }",
				"error-syntax": "hello",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if err == nil {
				err = g.Init(ctx, cfg)
			}
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, ctx)
				}
			} else {
				if err == nil {
					t.Fatalf("error expected='%s' actual=nil", c.expectErr)
				}
				if !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, mkCheck(c))
	}
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../../hydro.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	c := MustReadConfig(log, NewOsFullReader(), "../../hydro.hcl")
	assert.NotEmpty(t, c.Hardware.XXX_Sensors)
}

func TestNewTestContext(t *testing.T) {
	t.Parallel()

	ctx, g := NewTestContext(t, `hardware { mock = true actuator "Fan" { pin = 5 } }
persist { root = "`+t.TempDir()+`" }`)
	assert.Equal(t, g, GetGlobal(ctx))
	_, err := g.Registry.Actuator("Fan")
	assert.NoError(t, err)
	assert.True(t, g.StopWait(time.Second))
}
