package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ericogr/thermistor-to-mqtt/pkg/fault"
	"github.com/ericogr/thermistor-to-mqtt/pkg/thermistor"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseKeyFloatMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[int]float64
		ok   bool
	}{
		{"", map[int]float64{}, true},
		{"0=1.23,1=0.98", map[int]float64{0: 1.23, 1: 0.98}, true},
		{" 0 = 1 , 2 = -0.5", map[int]float64{0: 1.0, 2: -0.5}, true},
		{"bad", nil, false},
		{"x=1", nil, false},
	}
	for _, tt := range tests {
		got, err := parseKeyFloatMap(tt.in)
		if !tt.ok {
			assert.Error(t, err, "parseKeyFloatMap(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "parseKeyFloatMap(%q)", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseKeyIntMap(t *testing.T) {
	got, err := parseKeyIntMap("0=25, 2=50")
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 25, 2: 50}, got)

	_, err = parseKeyIntMap("0=many")
	assert.Error(t, err)
}

func TestParseKeyBoolMap(t *testing.T) {
	got, err := parseKeyBoolMap("0=true,1=false")
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{0: true, 1: false}, got)

	_, err = parseKeyBoolMap("bad")
	assert.Error(t, err)
}

func TestParseIntOrHex(t *testing.T) {
	v, err := parseIntOrHex("0x48")
	require.NoError(t, err)
	assert.Equal(t, 72, v)

	v, err = parseIntOrHex("73")
	require.NoError(t, err)
	assert.Equal(t, 73, v)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 25, cfg.Sampling.SampleCount)
	assert.Equal(t, 2, cfg.Sampling.SettleDelayMs)
	assert.Len(t, cfg.EnabledProbes(), 1)

	// a 12-bit mid-divider count from the default serial bridge converts
	assert.Equal(t, "serial", cfg.SensorType)
	got, err := thermistor.Convert(2048, cfg.Calibration, cfg.Probes[0].Steinhart)
	require.NoError(t, err)
	assert.InDelta(t, 33.3336, got.Celsius, 1e-3)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadJSON(t *testing.T) {
	path := writeTemp(t, "config.json", `{
        "sensor_type": "serial",
        "serial": {"port": "/dev/ttyACM0"},
        "calibration": {"supply_voltage": 3.24, "fixed_resistance_ohms": 1031000, "bit_resolution": 4095},
        "sampling": {"sample_count": 10, "settle_delay_ms": 0},
        "probes": [
            {"name": "meat", "channel": 0, "enabled": true, "steinhart": {"a": 0.3157857383e-3, "b": 2.238394535e-04, "c": -0.1725002939e-07}},
            {"name": "oven", "channel": 1, "enabled": true, "steinhart": {"a": 1.3e-3, "b": 9.1e-5, "c": 2.6e-7},
             "calibration": {"fixed_resistance_ohms": 100000}, "sample_count": 50}
        ],
        "outputs": [{"type": "mqtt", "mqtt": {"server": "tcp://broker:1883"}}]
    }`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "serial", cfg.SensorType)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate, "default kept")
	assert.Equal(t, 10, cfg.Sampling.SampleCount)
	assert.Equal(t, 0, cfg.Sampling.SettleDelayMs, "explicit zero kept")
	assert.Equal(t, 1, cfg.Sampling.ReadRetries, "default kept")
	require.Len(t, cfg.Probes, 2)

	oven := cfg.Probes[1]
	assert.Equal(t, thermistor.Calibration{SupplyVoltage: 3.24, FixedResistanceOhms: 100000, BitResolution: 4095}, cfg.ProbeCalibration(oven))
	assert.Equal(t, 50, cfg.ProbeSampleCount(oven))
	assert.Equal(t, 10, cfg.ProbeSampleCount(cfg.Probes[0]))

	require.Len(t, cfg.Outputs, 1)
	mq := cfg.Outputs[0].MQTT
	require.NotNil(t, mq)
	assert.Equal(t, DefaultTopic, mq.Topic)
	assert.Contains(t, mq.ClientID, "thermistor-")
	assert.Zero(t, cfg.Outputs[0].IntervalMs, "filled once overrides are applied")
}

func TestLoadYAML(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
sensor_type: simulation
interval_ms: 5000
probes:
  - name: probe1
    channel: 2
    enabled: true
    steinhart: {a: 1.310531755e-3, b: 0.9098587657e-4, c: 2.646335027e-7}
outputs:
  - type: http
  - type: console
    interval_ms: 1000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "simulation", cfg.SensorType)
	assert.Equal(t, 3.25, cfg.Calibration.SupplyVoltage, "default kept")
	require.Len(t, cfg.Probes, 1)
	assert.Equal(t, 2, cfg.Probes[0].Channel)
	require.Len(t, cfg.Outputs, 2)
	assert.Equal(t, ":8080", cfg.Outputs[0].HTTP.Listen)
	assert.Zero(t, cfg.Outputs[0].IntervalMs)
	assert.Equal(t, 1000, cfg.Outputs[1].IntervalMs)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeTemp(t, "bad.yaml", "invalid: yaml: content: ["))
	assert.Error(t, err)

	_, err = Load(writeTemp(t, "bad.json", "{"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown sensor", func(c *Config) { c.SensorType = "pt100" }},
		{"zero samples", func(c *Config) { c.Sampling.SampleCount = 0 }},
		{"negative settle", func(c *Config) { c.Sampling.SettleDelayMs = -1 }},
		{"negative retries", func(c *Config) { c.Sampling.ReadRetries = -1 }},
		{"zero interval", func(c *Config) { c.IntervalMs = 0 }},
		{"no enabled probes", func(c *Config) { c.Probes[0].Enabled = false }},
		{"empty name", func(c *Config) { c.Probes[0].Name = "" }},
		{"duplicate name", func(c *Config) { c.Probes = append(c.Probes, c.Probes[0]) }},
		{"negative channel", func(c *Config) { c.Probes[0].Channel = -1 }},
		{"missing coefficients", func(c *Config) { c.Probes[0].Steinhart = thermistor.Coefficients{} }},
		{"bad calibration", func(c *Config) { c.Calibration.BitResolution = 0 }},
		{"bad override", func(c *Config) { c.Probes[0].Calibration = &thermistor.Calibration{SupplyVoltage: -1} }},
		{"unknown output", func(c *Config) { c.Outputs = []OutputConfig{{Type: "influx"}} }},
		{"mqtt without server", func(c *Config) { c.Outputs = []OutputConfig{{Type: "mqtt"}} }},
		{"http without listen", func(c *Config) { c.Outputs = []OutputConfig{{Type: "http"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, fault.IsConfiguration(err), "%v", err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: "mqtt", MQTT: &MQTTConfig{Server: "tcp://a:1883", Username: "file"}})
	env := map[string]string{"MQTT_USERNAME": "env-user", "MQTT_PASSWORD": "secret"}

	cfg.ApplyEnv(func(k string) string { return env[k] })

	m := cfg.Outputs[1].MQTT
	assert.Equal(t, "tcp://a:1883", m.Server)
	assert.Equal(t, "env-user", m.Username)
	assert.Equal(t, "secret", m.Password)
	assert.Nil(t, cfg.Outputs[0].MQTT)
}

func TestFlagsOverride(t *testing.T) {
	path := writeTemp(t, "config.json", `{
        "probes": [
            {"name": "meat", "channel": 0, "enabled": true, "steinhart": {"a": 1.3e-3, "b": 9.1e-5, "c": 2.6e-7}},
            {"name": "oven", "channel": 1, "enabled": true, "steinhart": {"a": 1.3e-3, "b": 9.1e-5, "c": 2.6e-7}}
        ]
    }`)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--config", path,
		"--i2c-address", "0x49",
		"--sensor-type", "simulation",
		"--sample-count", "5",
		"--outputs", "console,http",
		"--output-intervals", "http=3000",
		"--mqtt-server", "tcp://broker:1883",
		"--mqtt-topic", "bbq/temperature",
		"--probe-enabled", "1=false",
		"--probe-sample-counts", "0=40",
		"--probe-fixed-resistance", "0=100000",
		"-v",
	}))

	cfg, err := f.Load(func(string) string { return "" })
	require.NoError(t, err)

	assert.Equal(t, 0x49, cfg.I2C.Address)
	assert.Equal(t, "simulation", cfg.SensorType)
	assert.Equal(t, 5, cfg.Sampling.SampleCount)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 2, cfg.Sampling.SettleDelayMs, "unset flag keeps file/default value")

	require.Len(t, cfg.Outputs, 3)
	assert.Equal(t, "console", cfg.Outputs[0].Type)
	assert.Equal(t, 3000, cfg.Outputs[1].IntervalMs)
	assert.Equal(t, "mqtt", cfg.Outputs[2].Type)
	assert.Equal(t, "tcp://broker:1883", cfg.Outputs[2].MQTT.Server)
	assert.Equal(t, "bbq/temperature", cfg.Outputs[2].MQTT.Topic)

	require.Len(t, cfg.EnabledProbes(), 1)
	meat := cfg.Probes[0]
	assert.Equal(t, 40, cfg.ProbeSampleCount(meat))
	assert.Equal(t, 100000.0, cfg.ProbeCalibration(meat).FixedResistanceOhms)
	assert.Equal(t, 3.25, cfg.ProbeCalibration(meat).SupplyVoltage)
}

func TestIntervalFlagReachesOutputs(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
interval_ms: 5000
outputs:
  - type: console
  - type: http
    interval_ms: 30000
`)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--interval-ms", "200", "--sensor-type", "simulation"}))

	cfg, err := f.Load(func(string) string { return "" })
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.IntervalMs)
	assert.Equal(t, 200, cfg.Outputs[0].IntervalMs)
	assert.Equal(t, 30000, cfg.Outputs[1].IntervalMs, "explicit interval kept")

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	f = BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--interval-ms", "250"}))
	cfg, err = f.Load(func(string) string { return "" })
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Outputs[0].IntervalMs, "default console output follows the flag")
}

func TestFlagsRejectInvalidResult(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--sample-count", "0"}))

	_, err := f.Load(func(string) string { return "" })
	assert.True(t, fault.IsConfiguration(err))
}
