package console

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/hydro/internal/state"
	"github.com/temoto/hydro/internal/telemetry"
)

func newTestContext(t *testing.T) context.Context {
	ctx, _ := state.NewTestContext(t, `
persist { root = "`+t.TempDir()+`" }
hardware {
	mock = true
	actuator "EC_Pump" { pin = 18 }
	sensor "DHT22" { kind = "dht22" delay_ms = 1 settle_ms = 1 }
}`)
	return ctx
}

func TestExecute(t *testing.T) {
	t.Parallel()

	cases := []struct {
		line      string
		expect    string
		expectErr string
	}{
		{"", "", ""},
		{"help", help, ""},
		{"activate EC_Pump", "EC_Pump ON", ""},
		{"status", "actuator EC_Pump ON\nsensor DHT22 Initialized", ""},
		{"deactivate EC_Pump", "EC_Pump OFF", ""},
		{"activate", "", "activate expects 1 argument, got 0 not valid"},
		{"activate Heater", "", "Unrecognized actuator: Heater"},
		{"read pH", "", "Unrecognized sensor: pH"},
		{"fly", "", `command="fly" (try help) not supported`},
	}
	ctx := newTestContext(t)
	// sequential, cases share actuator state
	for _, c := range cases {
		out, err := Execute(ctx, c.line)
		if c.expectErr != "" {
			require.Error(t, err, "line=%q", c.line)
			assert.Equal(t, c.expectErr, err.Error(), "line=%q", c.line)
			continue
		}
		require.NoError(t, err, "line=%q", c.line)
		assert.Equal(t, c.expect, out, "line=%q", c.line)
	}
}

func TestExecuteRead(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	for _, line := range []string{"read", "read all", "read DHT22"} {
		out, err := Execute(ctx, line)
		require.NoError(t, err, "line=%q", line)
		var data telemetry.SensorMap
		require.NoError(t, json.Unmarshal([]byte(out), &data))
		require.Contains(t, data, "DHT22")
		assert.Equal(t, "OK", data["DHT22"].SensorStatus)
	}
	_, err := Execute(ctx, "read a b")
	assert.True(t, errors.IsNotValid(err))
	assert.Equal(t, "OK", state.GetGlobal(ctx).Registry.Sensors()[0].Status().String())
}
