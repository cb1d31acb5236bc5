// Package sensor implements raw value sources for supported sensor kinds.
// Power, retries and status are handled by device.Sensor.
package sensor

import (
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/hydro/internal/device"
)

const (
	KindDHT22   = "dht22"
	KindDS18B20 = "ds18b20"
	KindEC      = "ec"

	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldEC          = "ec_value"
)

func Fields(kind string) ([]device.Field, error) {
	switch kind {
	case KindDHT22:
		return []device.Field{device.PositiveField(FieldTemperature), device.PositiveField(FieldHumidity)}, nil
	case KindDS18B20:
		return []device.Field{device.PositiveField(FieldTemperature)}, nil
	case KindEC:
		return []device.Field{device.PositiveField(FieldEC), device.PositiveField(FieldTemperature)}, nil
	}
	return nil, errors.NotValidf("sensor kind=%s", kind)
}

// readMilli parses sysfs integer attribute in milli units.
func readMilli(path string) (float64, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, errors.Annotatef(err, "read %s", path)
	}
	s := strings.TrimSpace(string(b))
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Annotatef(err, "parse %s value=%q", path, s)
	}
	return float64(i) / 1000, nil
}
