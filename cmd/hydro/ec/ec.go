// Package ec is EC electrode calibration tool.
// Usage: put electrode into 1.413 or 12.88 mS/cm buffer solution, run `hydro ec-calibrate [SENSOR]`.
package ec

import (
	"context"
	"flag"

	"github.com/juju/errors"
	"github.com/temoto/hydro/cmd/hydro/subcmd"
	"github.com/temoto/hydro/hardware/sensor/ec"
	"github.com/temoto/hydro/helpers"
	"github.com/temoto/hydro/internal/state"
)

var CalibrateMod = subcmd.Mod{Name: "ec-calibrate", Usage: "[SENSOR] calibrate EC electrode in buffer solution", Main: CalibrateMain}
var ResetMod = subcmd.Mod{Name: "ec-reset", Usage: "reset EC calibration to defaults", Main: ResetMain}

func CalibrateMain(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	config.Tele.Enabled = false
	g.MustInit(ctx, config)
	defer g.Shutdown()

	cal, buffer, err := Calibrate(ctx, flag.Arg(1))
	if err != nil {
		return err
	}
	g.Log.Infof("ec calibrated with buffer=%g mS/cm, stored %s", buffer, cal.String())
	return nil
}

func ResetMain(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	config.Tele.Enabled = false
	g.MustInit(ctx, config)
	defer g.Shutdown()

	cal, err := Reset(ctx)
	if err != nil {
		return err
	}
	g.Log.Infof("ec calibration reset to %s", cal.String())
	return nil
}

// Calibrate powers named EC sensor, measures electrode voltage and stores updated coefficient.
// Empty name selects the only EC sensor in config.
func Calibrate(ctx context.Context, name string) (ec.Calibration, float64, error) {
	g := state.GetGlobal(ctx)
	if name == "" {
		names := g.ECSensorNames()
		if len(names) != 1 {
			return ec.Calibration{}, 0, errors.NotValidf("ec sensor name required, configured=%v", names)
		}
		name = names[0]
	}
	src, err := g.ECSource(name)
	if err != nil {
		return ec.Calibration{}, 0, err
	}
	s, err := g.Registry.Sensor(name)
	if err != nil {
		return ec.Calibration{}, 0, err
	}
	store, err := g.ECStore()
	if err != nil {
		return ec.Calibration{}, 0, err
	}

	power := s.Power()
	if err = power.Activate(); err != nil {
		return ec.Calibration{}, 0, errors.Annotate(err, "ec power on")
	}
	defer func() {
		if err := power.Deactivate(); err != nil {
			g.Log.Errorf("CRITICAL ec power off err=%v", err)
		}
	}()
	if err = helpers.SleepContext(ctx, s.Policy().Settle); err != nil {
		return ec.Calibration{}, 0, err
	}
	mV, err := src.Voltage(ctx)
	if err != nil {
		return ec.Calibration{}, 0, errors.Annotate(err, "ec voltage")
	}
	g.Log.Debugf("ec calibrate sensor=%s voltage=%.2fmV raw=%.4f", name, mV, ec.Raw(mV))

	conv := src.Converter()
	cal, buffer, err := ec.Calibrate(conv.Calibration(), mV, src.Temperature())
	if err != nil {
		return ec.Calibration{}, 0, err
	}
	if err = store.Store(cal); err != nil {
		return ec.Calibration{}, 0, err
	}
	conv.SetCalibration(cal)
	return cal, buffer, nil
}

// Reset writes default coefficients and applies them to every EC sensor.
func Reset(ctx context.Context) (ec.Calibration, error) {
	g := state.GetGlobal(ctx)
	store, err := g.ECStore()
	if err != nil {
		return ec.Calibration{}, err
	}
	cal, err := store.Reset()
	if err != nil {
		return ec.Calibration{}, err
	}
	for _, name := range g.ECSensorNames() {
		if src, err := g.ECSource(name); err == nil {
			src.Converter().SetCalibration(cal)
		}
	}
	return cal, nil
}
