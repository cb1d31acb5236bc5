package sensor

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strconv"

	"github.com/juju/errors"
	"github.com/temoto/hydro/internal/device"
)

const DefaultW1Devices = "/sys/bus/w1/devices"

// scratchpad content before first conversion after power up
const powerOnResetMilli = 85000

// DS18B20 reads w1_therm kernel driver.
// Device directory is looked up on every read because it disappears while power is off.
type DS18B20 struct {
	root   string
	device string // empty = first 28-*
}

func NewDS18B20(root, device string) *DS18B20 {
	if root == "" {
		root = DefaultW1Devices
	}
	return &DS18B20{root: root, device: device}
}

func (self *DS18B20) Fields() []device.Field {
	fs, _ := Fields(KindDS18B20)
	return fs
}

func (self *DS18B20) path() (string, error) {
	if self.device != "" {
		return filepath.Join(self.root, self.device, "w1_slave"), nil
	}
	matches, err := filepath.Glob(filepath.Join(self.root, "28-*"))
	if err != nil {
		return "", errors.Annotate(err, "w1 glob")
	}
	if len(matches) == 0 {
		return "", errors.NotFoundf("w1 device 28-* in %s", self.root)
	}
	return filepath.Join(matches[0], "w1_slave"), nil
}

func (self *DS18B20) Read(ctx context.Context) (device.Values, error) {
	p, err := self.path()
	if err != nil {
		return nil, err
	}
	b, err := ioutil.ReadFile(p)
	if err != nil {
		return nil, errors.Annotatef(err, "read %s", p)
	}
	temp, err := parseW1Slave(b)
	if err != nil {
		return nil, errors.Annotatef(err, "parse %s", p)
	}
	v := make(device.Values, 1)
	v.Set(FieldTemperature, temp)
	return v, nil
}

// 72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
// 72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(b []byte) (float64, error) {
	lines := bytes.Split(bytes.TrimSpace(b), []byte{'\n'})
	if len(lines) < 2 {
		return 0, errors.NotValidf("w1_slave lines=%d", len(lines))
	}
	if !bytes.HasSuffix(bytes.TrimSpace(lines[0]), []byte("YES")) {
		return 0, errors.Errorf("w1_slave crc mismatch %q", lines[0])
	}
	i := bytes.LastIndex(lines[1], []byte("t="))
	if i < 0 {
		return 0, errors.NotValidf("w1_slave without t= %q", lines[1])
	}
	milli, err := strconv.ParseInt(string(bytes.TrimSpace(lines[1][i+2:])), 10, 32)
	if err != nil {
		return 0, errors.Annotate(err, "w1_slave t=")
	}
	if milli == powerOnResetMilli {
		return 0, errors.Errorf("w1_slave power-on reset value t=%d", milli)
	}
	return float64(milli) / 1000, nil
}
