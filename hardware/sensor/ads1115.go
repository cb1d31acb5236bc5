package sensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

const (
	DefaultADS1115Address = 0x48

	adsRegConversion = 0x00
	adsRegConfig     = 0x01

	adsConfigOS         = 1 << 15 // write: start single conversion, read: 1=idle
	adsConfigMuxSingle  = 0x4     // AINx vs GND, <<12, +channel
	adsConfigModeSingle = 1 << 8
	adsConfigDR128      = 0x4 << 5
	adsConfigCompOff    = 0x3

	adsPollInterval = 2 * time.Millisecond
	adsPollTimeout  = 100 * time.Millisecond
)

// full scale range in mV by PGA code
var adsFullScale = [...]float64{6144, 4096, 2048, 1024, 512, 256}

// Tx is one I2C write-then-read transaction, i2c.Dev.Tx in production.
type Tx func(w, r []byte) error

// ADS1115 16 bit ADC, single shot conversion on demand.
type ADS1115 struct {
	mu   sync.Mutex
	tx   Tx
	gain uint8
}

func NewADS1115(tx Tx, gain uint8) (*ADS1115, error) {
	if int(gain) >= len(adsFullScale) {
		return nil, errors.NotValidf("ads1115 gain=%d", gain)
	}
	return &ADS1115{tx: tx, gain: gain}, nil
}

// I2CBus is opened once and shared by all ADC chips on it.
type I2CBus struct {
	bus i2c.BusCloser
}

func OpenI2C(name string) (*I2CBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Annotatef(err, "I2C Open bus=%q", name)
	}
	return &I2CBus{bus: bus}, nil
}

func (self *I2CBus) Dev(addr uint16) Tx {
	d := &i2c.Dev{Addr: addr, Bus: self.bus}
	return d.Tx
}

func (self *I2CBus) Close() error { return self.bus.Close() }

func (self *ADS1115) config(channel uint8) uint16 {
	return adsConfigOS |
		uint16(adsConfigMuxSingle+channel)<<12 |
		uint16(self.gain)<<9 |
		adsConfigModeSingle |
		adsConfigDR128 |
		adsConfigCompOff
}

// Voltage in mV on single ended channel 0-3.
func (self *ADS1115) Voltage(ctx context.Context, channel uint8) (float64, error) {
	if channel > 3 {
		return 0, errors.NotValidf("ads1115 channel=%d", channel)
	}
	self.mu.Lock()
	defer self.mu.Unlock()

	w := []byte{adsRegConfig, 0, 0}
	binary.BigEndian.PutUint16(w[1:], self.config(channel))
	if err := self.tx(w, nil); err != nil {
		return 0, errors.Annotate(err, "ads1115 start conversion")
	}

	deadline := time.Now().Add(adsPollTimeout)
	r := make([]byte, 2)
	for {
		if err := self.tx([]byte{adsRegConfig}, r); err != nil {
			return 0, errors.Annotate(err, "ads1115 poll")
		}
		if binary.BigEndian.Uint16(r)&adsConfigOS != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, errors.Timeoutf("ads1115 conversion")
		}
		select {
		case <-time.After(adsPollInterval):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	if err := self.tx([]byte{adsRegConversion}, r); err != nil {
		return 0, errors.Annotate(err, "ads1115 read conversion")
	}
	raw := int16(binary.BigEndian.Uint16(r))
	return float64(raw) * adsFullScale[self.gain] / 32768, nil
}

func (self *ADS1115) String() string { return fmt.Sprintf("ads1115(gain=%d)", self.gain) }
