package ec

import (
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/extremofile"
	"github.com/temoto/hydro/log2"
)

// mV for given raw value
func mv(raw float64) float64 { return raw * circuitResistor * circuitAmplifier / 1000 }

func TestConverterSwitchK(t *testing.T) {
	t.Parallel()

	c := NewConverter(Calibration{KLow: 1, KHigh: 2})
	steps := []struct{ raw, expect float64 }{
		{2.2, 2.2}, // between thresholds, initial k=1 kept
		{3, 6},     // >2.5 switch to high
		{2.2, 4.4}, // high k kept
		{0.5, 0.5}, // <2.0 switch to low
	}
	for i, s := range steps {
		assert.InDelta(t, s.expect, c.EC(mv(s.raw), ReferenceTemp), 1e-9, "step=%d", i)
	}
}

func TestTemperatureCompensation(t *testing.T) {
	t.Parallel()

	c := NewConverter(DefaultCalibration())
	at25 := c.EC(mv(1.5), 25)
	at35 := c.EC(mv(1.5), 35)
	assert.InDelta(t, 1.5, at25, 1e-9)
	assert.InDelta(t, 1.5/(1+0.0185*10), at35, 1e-9)
}

func TestCalibrate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		raw    float64
		temp   float64
		buffer float64
	}{
		{"low-25", 1.4, 25, BufferLow},
		{"low-18", 1.2, 18.5, BufferLow},
		{"high-25", 12, 25, BufferHigh},
		{"high-30", 15, 30, BufferHigh},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			cal, buffer, err := Calibrate(DefaultCalibration(), mv(c.raw), c.temp)
			require.NoError(t, err)
			assert.Equal(t, c.buffer, buffer)
			if buffer == BufferLow {
				assert.Equal(t, DefaultK, cal.KHigh)
			} else {
				assert.Equal(t, DefaultK, cal.KLow)
			}
			// reading the same solution at the same temperature yields buffer value
			conv := NewConverter(cal)
			assert.InDelta(t, c.buffer, conv.EC(mv(c.raw), c.temp), 1e-9)
		})
	}
}

func TestCalibrateUnknownBuffer(t *testing.T) {
	t.Parallel()

	for _, raw := range []float64{0.5, 0.85, 1.95, 5, 8.9, 17, 20} {
		cal, _, err := Calibrate(DefaultCalibration(), mv(raw), 25)
		require.Error(t, err, "raw=%g", raw)
		assert.Equal(t, ErrBufferUnknown, errors.Cause(err))
		assert.Equal(t, DefaultCalibration(), cal)
	}
	_, _, err := Calibrate(DefaultCalibration(), 0, 25)
	assert.True(t, errors.IsNotValid(err))
}

func TestCalibrationBinary(t *testing.T) {
	t.Parallel()

	b, err := Calibration{KLow: 1.0092, KHigh: 0.98}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, "kvalueLow=1.0092\nkvalueHigh=0.98\n", string(b))

	var c Calibration
	require.NoError(t, c.UnmarshalBinary(b))
	assert.Equal(t, Calibration{KLow: 1.0092, KHigh: 0.98}, c)

	for _, bad := range []string{"", "kvalueLow=1\n", "kvalueLow=x\nkvalueHigh=1", "kvalueLow=1\nkvalueHigh=-1", "foo=1\nkvalueLow=1\nkvalueHigh=1", "garbage"} {
		assert.Error(t, c.UnmarshalBinary([]byte(bad)), "input=%q", bad)
	}
	_, err = Calibration{}.MarshalBinary()
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	log := log2.NewTest(t, log2.LDebug)
	s, err := NewStore(root, log)
	require.NoError(t, err)

	cal, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultCalibration(), cal)

	require.NoError(t, s.Store(Calibration{KLow: 1.1, KHigh: 0.9}))
	s2, err := NewStore(root, log)
	require.NoError(t, err)
	cal, err = s2.Load()
	require.NoError(t, err)
	assert.Equal(t, Calibration{KLow: 1.1, KHigh: 0.9}, cal)

	cal, err = s2.Reset()
	require.NoError(t, err)
	assert.Equal(t, DefaultCalibration(), cal)
	cal, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultCalibration(), cal)
}

func TestStoreCorrupt(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	raw := extremofile.New(extremofile.Config{Dir: filepath.Join(root, storeTag)})
	_, err := raw.Write([]byte("kvalueLow=banana\n"))
	require.NoError(t, err)

	s, err := NewStore(root, log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)
	_, err = s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ec calibration corrupt")
}

func TestNewStoreEmptyRoot(t *testing.T) {
	t.Parallel()

	_, err := NewStore("", log2.NewTest(t, log2.LDebug))
	assert.True(t, errors.IsNotValid(err))
}
