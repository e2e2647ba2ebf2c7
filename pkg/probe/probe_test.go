package probe

import (
	"errors"
	"testing"
	"time"

	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"github.com/ericogr/thermistor-to-mqtt/pkg/fault"
	"github.com/ericogr/thermistor-to-mqtt/pkg/sensor"
	"github.com/ericogr/thermistor-to-mqtt/pkg/thermistor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constReader returns a fixed count per channel; a missing channel is a
// configuration error, a negative count a transient failure.
type constReader map[int]int

func (r constReader) ReadRaw(channel int) (int, error) {
	v, ok := r[channel]
	if !ok {
		return 0, fault.Config("channel", "channel %d not configured", channel)
	}
	if v < 0 {
		return 0, errors.New("read failed")
	}
	return v, nil
}

func (r constReader) Close() error { return nil }

var (
	calib  = thermistor.Calibration{SupplyVoltage: 3.25, FixedResistanceOhms: 990000, BitResolution: 4095}
	coeffs = thermistor.Coefficients{A: 1.310531755e-3, B: 0.9098587657e-4, C: 2.646335027e-7}
)

func testPipeline(r sensor.ChannelReader, probes []Probe) *Pipeline {
	s := sensor.NewSampler(r, 1)
	s.Sleep = func(time.Duration) {}
	p := NewPipeline(s, probes, true)
	p.now = func() time.Time { return time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC) }
	return p
}

func TestCycleFaultsAreIsolated(t *testing.T) {
	probes := []Probe{
		{Name: "meat", Channel: 0, Coefficients: coeffs, Calibration: calib, SampleCount: 25, SettleDelay: 2 * time.Millisecond},
		{Name: "open", Channel: 1, Coefficients: coeffs, Calibration: calib, SampleCount: 25},
		{Name: "dead", Channel: 2, Coefficients: coeffs, Calibration: calib, SampleCount: 3},
		{Name: "missing", Channel: 7, Coefficients: coeffs, Calibration: calib, SampleCount: 3},
		{Name: "oven", Channel: 3, Coefficients: coeffs, Calibration: calib, SampleCount: 1},
	}
	r := constReader{0: 2048, 1: 0, 2: -1, 3: 3000}
	readings := testPipeline(r, probes).Cycle()
	require.Len(t, readings, 5)

	want, err := thermistor.Convert(2048, calib, coeffs)
	require.NoError(t, err)
	meat := readings[0]
	require.True(t, meat.OK())
	assert.Equal(t, "meat", meat.Probe)
	assert.Equal(t, 2048.0, meat.Raw)
	assert.Equal(t, want.Celsius, meat.Celsius)
	assert.Equal(t, want.Fahrenheit(), meat.Fahrenheit)
	assert.Equal(t, want.Resistance, meat.Resistance)

	assert.True(t, fault.IsSensorFault(readings[1].Err), "rail reading")
	assert.NotEmpty(t, readings[1].Fault)
	assert.True(t, fault.IsSensorFault(readings[2].Err), "all reads failed")
	assert.True(t, fault.IsConfiguration(readings[3].Err), "unconfigured channel")
	assert.True(t, readings[4].OK())
	assert.Greater(t, readings[4].Celsius, meat.Celsius)

	for _, rd := range readings {
		assert.Equal(t, time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC), rd.Timestamp)
	}

	temps := Temperatures(readings)
	assert.Equal(t, map[string]float64{"meat": meat.Celsius, "oven": readings[4].Celsius}, temps)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Sampling.SettleDelayMs = 3
	cfg.Probes = append(cfg.Probes,
		config.ProbeConfig{
			Name: "oven", Channel: 1, Enabled: true, Steinhart: coeffs,
			Calibration: &thermistor.Calibration{FixedResistanceOhms: 100000}, SampleCount: 50,
		},
		config.ProbeConfig{Name: "spare", Channel: 2, Enabled: false},
	)

	probes, err := FromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, probes, 2)

	assert.Equal(t, Probe{
		Name: "meat", Channel: 0, Coefficients: coeffs, Calibration: calib,
		SampleCount: 25, SettleDelay: 3 * time.Millisecond,
	}, probes[0])
	assert.Equal(t, 100000.0, probes[1].Calibration.FixedResistanceOhms)
	assert.Equal(t, 3.25, probes[1].Calibration.SupplyVoltage)
	assert.Equal(t, 50, probes[1].SampleCount)
}

func TestFromConfigInvalid(t *testing.T) {
	cfg := config.Default()
	cfg.Probes[0].Steinhart = thermistor.Coefficients{}
	_, err := FromConfig(cfg)
	assert.True(t, fault.IsConfiguration(err))
}
