package sensor

import (
	"context"

	"github.com/temoto/hydro/hardware/sensor/ec"
	"github.com/temoto/hydro/internal/device"
)

// Voltmeter is ADC channel reader, ADS1115 in production.
type Voltmeter interface {
	Voltage(ctx context.Context, channel uint8) (float64, error)
}

// EC electrode on ADC channel, temperature is fixed compensation value.
type EC struct {
	adc     Voltmeter
	channel uint8
	temp    float64
	conv    *ec.Converter
}

func NewEC(adc Voltmeter, channel uint8, compensationTemp float64, conv *ec.Converter) *EC {
	if compensationTemp == 0 {
		compensationTemp = ec.ReferenceTemp
	}
	return &EC{adc: adc, channel: channel, temp: compensationTemp, conv: conv}
}

func (self *EC) Fields() []device.Field {
	fs, _ := Fields(KindEC)
	return fs
}

func (self *EC) Converter() *ec.Converter { return self.conv }

// Voltage raw electrode output in mV, used by calibration.
func (self *EC) Voltage(ctx context.Context) (float64, error) {
	return self.adc.Voltage(ctx, self.channel)
}

func (self *EC) Temperature() float64 { return self.temp }

func (self *EC) Read(ctx context.Context) (device.Values, error) {
	mV, err := self.Voltage(ctx)
	if err != nil {
		return nil, err
	}
	v := make(device.Values, 2)
	v.Set(FieldEC, self.conv.EC(mV, self.temp))
	v.Set(FieldTemperature, self.temp)
	return v, nil
}
