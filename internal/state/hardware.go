package state

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/hydro/hardware/relay"
	"github.com/temoto/hydro/hardware/sensor"
	"github.com/temoto/hydro/hardware/sensor/ec"
	"github.com/temoto/hydro/helpers"
	"github.com/temoto/hydro/internal/device"
	"github.com/temoto/hydro/log2"
)

type hardware struct {
	log *log2.Log

	board struct {
		once
		*relay.Board
	}
	i2c struct {
		once
		*sensor.I2CBus
	}
	ecStore struct {
		once
		*ec.Store
	}

	mu sync.Mutex
	ec map[string]*sensor.EC
}

// RelayBoard is opened on first use, mock mode never touches GPIO.
func (g *Global) RelayBoard() (*relay.Board, error) {
	x := &g.Hardware.board
	_ = x.do(func() error {
		chip := g.Config.Hardware.GpioChip
		if chip == "" {
			chip = DefaultGpioChip
		}
		x.Board, x.err = relay.Open(chip, g.Hardware.log)
		return errors.Annotatef(x.err, "config: hardware.gpio_chip=%s", chip)
	})
	return x.Board, x.err
}

func (g *Global) I2C() (*sensor.I2CBus, error) {
	x := &g.Hardware.i2c
	_ = x.do(func() error {
		x.I2CBus, x.err = sensor.OpenI2C(g.Config.Hardware.I2CBus)
		return errors.Annotatef(x.err, "config: hardware.i2c_bus=%q", g.Config.Hardware.I2CBus)
	})
	return x.I2CBus, x.err
}

func (g *Global) ECStore() (*ec.Store, error) {
	x := &g.Hardware.ecStore
	_ = x.do(func() error {
		x.Store, x.err = ec.NewStore(g.Config.Persist.Root, g.Hardware.log)
		return x.err
	})
	return x.Store, x.err
}

// ECSource returns EC electrode of named sensor, used by calibration.
func (g *Global) ECSource(name string) (*sensor.EC, error) {
	g.Hardware.mu.Lock()
	defer g.Hardware.mu.Unlock()
	s, ok := g.Hardware.ec[name]
	if !ok {
		return nil, errors.NotFoundf("ec sensor=%s", name)
	}
	return s, nil
}

// ECSensorNames in config order.
func (g *Global) ECSensorNames() []string {
	names := make([]string, 0, 1)
	for _, sc := range g.Config.Hardware.XXX_Sensors {
		if sc.Kind == sensor.KindEC {
			names = append(names, sc.Name)
		}
	}
	return names
}

func (g *Global) driver(name string, pin int, activeLow bool) (device.Driver, error) {
	if g.Config.Hardware.Mock {
		return &device.MockDriver{}, nil
	}
	board, err := g.RelayBoard()
	if err != nil {
		return nil, err
	}
	return board.Relay(name, uint32(pin), activeLow)
}

func (g *Global) initActuators() error {
	errs := make([]error, 0)
	for _, ac := range g.Config.Hardware.XXX_Actuators {
		drv, err := g.driver(ac.Name, ac.Pin, ac.ActiveLow)
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "actuator=%s", ac.Name))
			continue
		}
		a := device.NewActuator(ac.Name, drv, g.Hardware.log)
		if err := g.Registry.AddActuator(a); err != nil {
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}

func (g *Global) initSensors() error {
	errs := make([]error, 0)
	for i := range g.Config.Hardware.XXX_Sensors {
		sc := &g.Config.Hardware.XXX_Sensors[i]
		if err := g.initSensor(sc); err != nil {
			errs = append(errs, errors.Annotatef(err, "sensor=%s", sc.Name))
		}
	}
	return helpers.FoldErrors(errs)
}

func (g *Global) initSensor(sc *SensorConfig) error {
	powerName := sc.Name + ".power"
	drv, err := g.driver(powerName, sc.PowerPin, sc.PowerActiveLow)
	if err != nil {
		return err
	}
	power := device.NewActuator(powerName, drv, g.Hardware.log)

	source, err := g.sensorSource(sc)
	if err != nil {
		return err
	}
	s, err := device.NewSensor(sc.Name, power, source, sc.Policy(), g.Hardware.log)
	if err != nil {
		return err
	}
	g.Hardware.log.Debugf("sensor=%s kind=%s %s", sc.Name, sc.Kind, sc.Policy().String())
	return g.Registry.AddSensor(s)
}

func (g *Global) sensorSource(sc *SensorConfig) (device.Source, error) {
	mock := g.Config.Hardware.Mock
	switch {
	case sc.Kind == sensor.KindEC:
		return g.ecSource(sc)

	case mock:
		m, err := sensor.NewMock(sc.Kind)
		if err != nil {
			return nil, err
		}
		m.FailEvery = uint32(sc.MockFailEvery)
		return m, nil

	case sc.Kind == sensor.KindDHT22:
		if sc.IIODevice == "" {
			return nil, errors.NotValidf("config: iio_device=empty")
		}
		return sensor.NewDHT22(sc.IIODevice), nil

	case sc.Kind == sensor.KindDS18B20:
		return sensor.NewDS18B20(sc.W1Root, sc.W1Device), nil
	}
	return nil, errors.NotValidf("sensor kind=%s", sc.Kind)
}

// EC needs calibration store even in mock mode, only voltmeter is replaced.
func (g *Global) ecSource(sc *SensorConfig) (device.Source, error) {
	store, err := g.ECStore()
	if err != nil {
		return nil, err
	}
	cal, err := store.Load()
	if err != nil {
		return nil, errors.Annotatef(err, "ec calibration dir=%s", store.Dir())
	}

	var adc sensor.Voltmeter
	if g.Config.Hardware.Mock {
		adc = &sensor.MockVoltmeter{MilliVolts: 1.413 * 164}
	} else {
		bus, err := g.I2C()
		if err != nil {
			return nil, err
		}
		addr := sc.AdcAddress
		if addr == 0 {
			addr = sensor.DefaultADS1115Address
		}
		ads, err := sensor.NewADS1115(bus.Dev(uint16(addr)), uint8(sc.AdcGain))
		if err != nil {
			return nil, err
		}
		adc = ads
	}

	s := sensor.NewEC(adc, uint8(sc.AdcChannel), sc.CompensationTemperature, ec.NewConverter(cal))
	helpers.WithLock(&g.Hardware.mu, func() {
		if g.Hardware.ec == nil {
			g.Hardware.ec = make(map[string]*sensor.EC)
		}
		g.Hardware.ec[sc.Name] = s
	})
	return s, nil
}

func (g *Global) closeHardware() error {
	errs := make([]error, 0, 2)
	if g.Hardware.board.done() && g.Hardware.board.Board != nil {
		if err := g.Hardware.board.Close(); err != nil {
			errs = append(errs, errors.Annotate(err, "gpio close"))
		}
	}
	if g.Hardware.i2c.done() && g.Hardware.i2c.I2CBus != nil {
		if err := g.Hardware.i2c.Close(); err != nil {
			errs = append(errs, errors.Annotate(err, "i2c close"))
		}
	}
	return helpers.FoldErrors(errs)
}

type once struct {
	sync.Mutex
	called uint32
	err    error
}

func (o *once) done() bool { return atomic.LoadUint32(&o.called) == 1 }
func (o *once) do(f func() error) error {
	if atomic.LoadUint32(&o.called) == 1 {
		return o.err
	}

	o.Lock()
	defer o.Unlock()
	if o.called == 0 {
		defer atomic.StoreUint32(&o.called, 1)
		o.err = f()
	}
	return o.err
}
