// Package relay drives relay board inputs through Linux GPIO character device.
package relay

import (
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/gpio-cdev-go"
	"github.com/temoto/hydro/helpers"
	"github.com/temoto/hydro/log2"
)

const consumer = "hydro"

// Board owns one GPIO chip and hands out one Relay per line.
type Board struct {
	log  *log2.Log
	chip gpio.Chiper

	mu     sync.Mutex
	relays []*Relay
}

func Open(chipPath string, log *log2.Log) (*Board, error) {
	chip, err := gpio.Open(chipPath, consumer)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open chip=%s", chipPath)
	}
	return NewBoard(chip, log), nil
}

// NewBoard with already opened chip, used by tests with gpio_mock.
func NewBoard(chip gpio.Chiper, log *log2.Log) *Board {
	return &Board{chip: chip, log: log}
}

// Relay requests one output line, initial state is off.
// activeLow is for boards where low level closes the contact,
// inversion is done by kernel so Set(true) always means energized.
func (self *Board) Relay(name string, line uint32, activeLow bool) (*Relay, error) {
	flag := gpio.GPIOHANDLE_REQUEST_OUTPUT
	if activeLow {
		flag |= gpio.GPIOHANDLE_REQUEST_ACTIVE_LOW
	}
	lines, err := self.chip.OpenLines(flag, consumer+"-"+name, line)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open line=%d relay=%s", line, name)
	}
	r := &Relay{
		name:  name,
		line:  line,
		lines: lines,
		set:   lines.SetFunc(line),
	}
	if err = r.Set(false); err != nil {
		_ = lines.Close()
		return nil, errors.Annotate(err, "initial off")
	}
	self.mu.Lock()
	self.relays = append(self.relays, r)
	self.mu.Unlock()
	self.log.Debugf("relay=%s line=%d active_low=%t", name, line, activeLow)
	return r, nil
}

// Close releases all lines then chip. Lines keep last value after release.
func (self *Board) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	errs := make([]error, 0)
	for _, r := range self.relays {
		if err := r.lines.Close(); err != nil {
			errs = append(errs, errors.Annotatef(err, "relay=%s", r.name))
		}
	}
	self.relays = nil
	if err := self.chip.Close(); err != nil {
		errs = append(errs, err)
	}
	return helpers.FoldErrors(errs)
}

// Relay implements device.Driver.
type Relay struct {
	name  string
	line  uint32
	lines gpio.Lineser
	set   gpio.LineSetFunc
	mu    sync.Mutex
}

func (self *Relay) Set(on bool) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	var v byte
	if on {
		v = 1
	}
	self.set(v)
	return errors.Annotatef(self.lines.Flush(), "relay=%s line=%d", self.name, self.line)
}

func (self *Relay) String() string { return fmt.Sprintf("relay(%s line=%d)", self.name, self.line) }
