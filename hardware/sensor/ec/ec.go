// Package ec converts analog EC electrode voltage into electrical conductivity (mS/cm).
// Formula and buffer solutions follow DFRobot Gravity analog EC meter.
package ec

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/juju/errors"
)

const (
	DefaultK           = 1.0
	BufferLow          = 1.413 // mS/cm
	BufferHigh         = 12.88 // mS/cm
	ReferenceTemp      = 25.0  // C
	tempCoefficient    = 0.0185
	kSwitchHigh        = 2.5
	kSwitchLow         = 2.0
	circuitResistor    = 820.0
	circuitAmplifier   = 200.0
	lowBufferRawFloor  = 0.9
	lowBufferRawCeil   = 1.9
	highBufferRawFloor = 9
	highBufferRawCeil  = 16.8
)

var ErrBufferUnknown = errors.New("buffer solution not recognized")

// Calibration coefficients, persisted by Store.
type Calibration struct {
	KLow  float64
	KHigh float64
}

func DefaultCalibration() Calibration { return Calibration{KLow: DefaultK, KHigh: DefaultK} }

func (c Calibration) Validate() error {
	for _, k := range []float64{c.KLow, c.KHigh} {
		if math.IsNaN(k) || math.IsInf(k, 0) || k <= 0 {
			return errors.NotValidf("ec calibration k=%g", k)
		}
	}
	return nil
}

func (c Calibration) MarshalBinary() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("kvalueLow=%s\nkvalueHigh=%s\n",
		strconv.FormatFloat(c.KLow, 'g', -1, 64),
		strconv.FormatFloat(c.KHigh, 'g', -1, 64))), nil
}

func (c *Calibration) UnmarshalBinary(b []byte) error {
	var parsed Calibration
	var seenLow, seenHigh bool
	for _, line := range bytes.Split(b, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		parts := bytes.SplitN(line, []byte{'='}, 2)
		if len(parts) != 2 {
			return errors.NotValidf("ec calibration line=%q", line)
		}
		f, err := strconv.ParseFloat(string(parts[1]), 64)
		if err != nil {
			return errors.Annotatef(err, "ec calibration line=%q", line)
		}
		switch string(parts[0]) {
		case "kvalueLow":
			parsed.KLow, seenLow = f, true
		case "kvalueHigh":
			parsed.KHigh, seenHigh = f, true
		default:
			return errors.NotValidf("ec calibration key=%q", parts[0])
		}
	}
	if !(seenLow && seenHigh) {
		return errors.NotValidf("ec calibration incomplete")
	}
	if err := parsed.Validate(); err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Calibration) String() string {
	return fmt.Sprintf("kvalue_low=%g kvalue_high=%g", c.KLow, c.KHigh)
}

// Raw conductivity before K and temperature compensation.
func Raw(mV float64) float64 { return 1000 * mV / circuitResistor / circuitAmplifier }

func compensate(value, temp float64) float64 {
	return value / (1 + tempCoefficient*(temp-ReferenceTemp))
}

// Converter keeps current K between readings,
// switching to KHigh/KLow by thresholds on uncompensated value.
type Converter struct {
	mu  sync.Mutex
	cal Calibration
	k   float64
}

func NewConverter(cal Calibration) *Converter {
	return &Converter{cal: cal, k: DefaultK}
}

func (self *Converter) Calibration() Calibration {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.cal
}

// SetCalibration after calibration procedure or reset, current K starts over.
func (self *Converter) SetCalibration(cal Calibration) {
	self.mu.Lock()
	self.cal = cal
	self.k = DefaultK
	self.mu.Unlock()
}

// EC in mS/cm from electrode voltage in mV at temperature in C.
func (self *Converter) EC(mV, temp float64) float64 {
	self.mu.Lock()
	defer self.mu.Unlock()
	raw := Raw(mV)
	if v := raw * self.k; v > kSwitchHigh {
		self.k = self.cal.KHigh
	} else if v < kSwitchLow {
		self.k = self.cal.KLow
	}
	return compensate(raw*self.k, temp)
}

// Calibrate detects buffer solution by raw value and returns updated calibration.
// Only one of KLow/KHigh changes.
func Calibrate(cal Calibration, mV, temp float64) (Calibration, float64, error) {
	if mV <= 0 {
		return cal, 0, errors.NotValidf("ec calibration voltage=%gmV", mV)
	}
	raw := Raw(mV)
	var buffer float64
	switch {
	case raw > lowBufferRawFloor && raw < lowBufferRawCeil:
		buffer = BufferLow
	case raw > highBufferRawFloor && raw < highBufferRawCeil:
		buffer = BufferHigh
	default:
		return cal, 0, errors.Annotatef(ErrBufferUnknown, "raw=%g", raw)
	}
	comp := buffer * (1 + tempCoefficient*(temp-ReferenceTemp))
	k := circuitResistor * circuitAmplifier * comp / 1000 / mV
	if buffer == BufferLow {
		cal.KLow = k
	} else {
		cal.KHigh = k
	}
	return cal, buffer, nil
}
