package sensor

import (
	"context"
	"path/filepath"

	"github.com/temoto/hydro/internal/device"
)

const DefaultIIODevice = "/sys/bus/iio/devices/iio:device0"

// DHT22 reads kernel dht11 IIO driver (dtoverlay=dht11 on Raspberry Pi).
// Checksum and timing failures surface as EIO/ETIMEDOUT read errors.
type DHT22 struct {
	dir string
}

func NewDHT22(iioDevice string) *DHT22 {
	if iioDevice == "" {
		iioDevice = DefaultIIODevice
	}
	return &DHT22{dir: iioDevice}
}

func (self *DHT22) Fields() []device.Field {
	fs, _ := Fields(KindDHT22)
	return fs
}

func (self *DHT22) Read(ctx context.Context) (device.Values, error) {
	temp, err := readMilli(filepath.Join(self.dir, "in_temp_input"))
	if err != nil {
		return nil, err
	}
	hum, err := readMilli(filepath.Join(self.dir, "in_humidityrelative_input"))
	if err != nil {
		return nil, err
	}
	v := make(device.Values, 2)
	v.Set(FieldTemperature, temp)
	v.Set(FieldHumidity, hum)
	return v, nil
}
