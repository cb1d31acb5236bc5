package state

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/hydro/hardware/sensor"
	"github.com/temoto/hydro/helpers"
	"github.com/temoto/hydro/internal/device"
	tele_config "github.com/temoto/hydro/internal/tele/config"
	"github.com/temoto/hydro/log2"
)

const DefaultGpioChip = "/dev/gpiochip0"

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Hardware HardwareConfig `hcl:"hardware"`
	Persist  struct {
		Root string `hcl:"root"`
	}
	Tele tele_config.Config `hcl:"tele"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

type HardwareConfig struct {
	GpioChip string `hcl:"gpio_chip"`
	I2CBus   string `hcl:"i2c_bus"`
	LogDebug bool   `hcl:"log_debug"`
	Mock     bool   `hcl:"mock"`

	XXX_Actuators []ActuatorConfig `hcl:"actuator"`
	XXX_Sensors   []SensorConfig   `hcl:"sensor"`
}

type ActuatorConfig struct {
	Name      string `hcl:"name,key"`
	Pin       int    `hcl:"pin"`
	ActiveLow bool   `hcl:"active_low"`
}

type SensorConfig struct { //nolint:maligned
	Name           string `hcl:"name,key"`
	Kind           string `hcl:"kind"`
	PowerPin       int    `hcl:"power_pin"`
	PowerActiveLow bool   `hcl:"power_active_low"`

	// dht22
	IIODevice string `hcl:"iio_device"`
	// ds18b20
	W1Root   string `hcl:"w1_root"`
	W1Device string `hcl:"w1_device"`
	// ec
	AdcAddress              int     `hcl:"adc_address"`
	AdcChannel              int     `hcl:"adc_channel"`
	AdcGain                 int     `hcl:"adc_gain"`
	CompensationTemperature float64 `hcl:"compensation_temperature"`

	// 0 = kind default
	Attempts int `hcl:"attempts"`
	DelayMs  int `hcl:"delay_ms"`
	SettleMs int `hcl:"settle_ms"`

	// mock mode only
	MockFailEvery int `hcl:"mock_fail_every"`
}

// kind defaults follow datasheet minimum sampling intervals
var sensorDefaults = map[string]device.RetryPolicy{
	sensor.KindDHT22:   {Attempts: 3, Delay: 2 * time.Second, Settle: 2 * time.Second},
	sensor.KindDS18B20: {Attempts: 3, Delay: 1 * time.Second, Settle: 1 * time.Second},
	sensor.KindEC:      {Attempts: 5, Delay: 2 * time.Second},
}

// Policy with kind defaults for zero values.
func (self *SensorConfig) Policy() device.RetryPolicy {
	def := sensorDefaults[self.Kind]
	p := device.RetryPolicy{
		Attempts: self.Attempts,
		Delay:    helpers.IntMillisecondDefault(self.DelayMs, def.Delay),
		Settle:   helpers.IntMillisecondDefault(self.SettleMs, def.Settle),
	}
	if p.Attempts == 0 {
		p.Attempts = def.Attempts
	}
	return p
}

func (self *SensorConfig) Validate() error {
	if self.Name == "" {
		return errors.NotValidf("sensor name=empty")
	}
	if _, ok := sensorDefaults[self.Kind]; !ok {
		return errors.NotValidf("sensor=%s kind=%q (valid: %s, %s, %s)",
			self.Name, self.Kind, sensor.KindDHT22, sensor.KindDS18B20, sensor.KindEC)
	}
	if self.Attempts < 0 {
		return errors.NotValidf("sensor=%s attempts=%d", self.Name, self.Attempts)
	}
	if self.DelayMs < 0 || self.SettleMs < 0 {
		return errors.NotValidf("sensor=%s delay_ms=%d settle_ms=%d", self.Name, self.DelayMs, self.SettleMs)
	}
	if self.PowerPin < 0 {
		return errors.NotValidf("sensor=%s power_pin=%d", self.Name, self.PowerPin)
	}
	if self.Kind == sensor.KindEC {
		if self.AdcChannel < 0 || self.AdcChannel > 3 {
			return errors.NotValidf("sensor=%s adc_channel=%d", self.Name, self.AdcChannel)
		}
		if self.AdcAddress < 0 || self.AdcAddress > 0x7f {
			return errors.NotValidf("sensor=%s adc_address=%d", self.Name, self.AdcAddress)
		}
	}
	return self.Policy().Validate()
}

func (self *ActuatorConfig) Validate() error {
	if self.Name == "" {
		return errors.NotValidf("actuator name=empty")
	}
	if self.Pin < 0 {
		return errors.NotValidf("actuator=%s pin=%d", self.Name, self.Pin)
	}
	return nil
}

// Validate checks whole config, errors are folded so operator sees all at once.
func (c *Config) Validate() error {
	errs := make([]error, 0)
	if err := c.Tele.Validate(); err != nil {
		errs = append(errs, errors.Annotate(err, "config: tele"))
	}
	seenActuators := make(map[string]struct{}, len(c.Hardware.XXX_Actuators))
	for i := range c.Hardware.XXX_Actuators {
		a := &c.Hardware.XXX_Actuators[i]
		if err := a.Validate(); err != nil {
			errs = append(errs, errors.Annotate(err, "config: hardware"))
			continue
		}
		if _, ok := seenActuators[a.Name]; ok {
			errs = append(errs, errors.NotValidf("config: duplicate actuator=%s", a.Name))
		}
		seenActuators[a.Name] = struct{}{}
	}
	seenSensors := make(map[string]struct{}, len(c.Hardware.XXX_Sensors))
	for i := range c.Hardware.XXX_Sensors {
		s := &c.Hardware.XXX_Sensors[i]
		if err := s.Validate(); err != nil {
			errs = append(errs, errors.Annotate(err, "config: hardware"))
			continue
		}
		if _, ok := seenSensors[s.Name]; ok {
			errs = append(errs, errors.NotValidf("config: duplicate sensor=%s", s.Name))
		}
		seenSensors[s.Name] = struct{}{}
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, fmt.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig parses names in order, later sources and includes overwrite earlier values.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
