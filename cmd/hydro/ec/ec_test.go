package ec

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/hydro/hardware/sensor/ec"
	"github.com/temoto/hydro/internal/state"
	"github.com/temoto/hydro/log2"
)

const testConfig = `
hardware {
	mock = true
	sensor "EC" { kind = "ec" power_pin = 22 compensation_temperature = 20 settle_ms = 1 delay_ms = 1 }
}`

func TestCalibrate(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx, g := state.NewTestContext(t, testConfig+`
persist { root = "`+root+`" }`)

	// mock electrode outputs raw=1.413 (low buffer) at 20C
	cal, buffer, err := Calibrate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ec.BufferLow, buffer)
	assert.InDelta(t, 1.413*(1-0.0185*5)/1.413, cal.KLow, 1e-9)
	assert.Equal(t, ec.DefaultK, cal.KHigh)

	src, err := g.ECSource("EC")
	require.NoError(t, err)
	assert.Equal(t, cal, src.Converter().Calibration())
	s, err := g.Registry.Sensor("EC")
	require.NoError(t, err)
	assert.Equal(t, "OFF", s.Power().State().String(), "power off after calibration")

	store, err := ec.NewStore(root, log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)
	stored, err := store.Load()
	require.NoError(t, err)
	assert.InDelta(t, cal.KLow, stored.KLow, 1e-9)

	cal, err = Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, ec.DefaultCalibration(), cal)
	assert.Equal(t, cal, src.Converter().Calibration())
}

func TestCalibrateErrors(t *testing.T) {
	t.Parallel()

	ctx, _ := state.NewTestContext(t, `hardware { mock = true }
persist { root = "`+t.TempDir()+`" }`)
	_, _, err := Calibrate(ctx, "")
	assert.True(t, errors.IsNotValid(err))
	_, _, err = Calibrate(ctx, "EC")
	assert.True(t, errors.IsNotFound(err))
}
