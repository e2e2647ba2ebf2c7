package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ericogr/thermistor-to-mqtt/pkg/fault"
	"github.com/ericogr/thermistor-to-mqtt/pkg/thermistor"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTopic         = "temperature"
	DefaultSampleCount   = 25
	DefaultSettleDelayMs = 2
	DefaultReadRetries   = 1
	DefaultIntervalMs    = 1000
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	Topic             string `json:"topic" yaml:"topic"`
	Retained          bool   `json:"retained,omitempty" yaml:"retained,omitempty"`
	ConnectRetryMs    int    `json:"connect_retry_ms,omitempty" yaml:"connect_retry_ms,omitempty"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty" yaml:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty" yaml:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty" yaml:"discovery_unique_id,omitempty"`
}

type HTTPConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

type OutputConfig struct {
	Type       string      `json:"type" yaml:"type"`
	IntervalMs int         `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`
	MQTT       *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	HTTP       *HTTPConfig `json:"http,omitempty" yaml:"http,omitempty"`
}

type I2CConfig struct {
	Bus        string `json:"bus" yaml:"bus"`
	Address    int    `json:"address" yaml:"address"`
	SampleRate int    `json:"sample_rate" yaml:"sample_rate"`
}

type SerialConfig struct {
	Port      string `json:"port" yaml:"port"`
	BaudRate  int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// SimulationConfig drives the fake channel reader.
type SimulationConfig struct {
	Center float64 `json:"center" yaml:"center"` // fraction of full scale, 0..1
	Noise  float64 `json:"noise" yaml:"noise"`   // raw counts
	Seed   int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
}

type SamplingConfig struct {
	SampleCount   int `json:"sample_count" yaml:"sample_count"`
	SettleDelayMs int `json:"settle_delay_ms" yaml:"settle_delay_ms"`
	ReadRetries   int `json:"read_retries" yaml:"read_retries"`
}

// ProbeConfig describes one physical probe. Calibration, when set, overrides
// the non-zero fields of the global calibration for this probe only.
type ProbeConfig struct {
	Name        string                  `json:"name" yaml:"name"`
	Channel     int                     `json:"channel" yaml:"channel"`
	Enabled     bool                    `json:"enabled" yaml:"enabled"`
	Steinhart   thermistor.Coefficients `json:"steinhart" yaml:"steinhart"`
	Calibration *thermistor.Calibration `json:"calibration,omitempty" yaml:"calibration,omitempty"`
	SampleCount int                     `json:"sample_count,omitempty" yaml:"sample_count,omitempty"`
}

type Config struct {
	SensorType  string                 `json:"sensor_type" yaml:"sensor_type"`
	I2C         I2CConfig              `json:"i2c" yaml:"i2c"`
	Serial      SerialConfig           `json:"serial" yaml:"serial"`
	Simulation  SimulationConfig       `json:"simulation" yaml:"simulation"`
	Calibration thermistor.Calibration `json:"calibration" yaml:"calibration"`
	Sampling    SamplingConfig         `json:"sampling" yaml:"sampling"`
	Probes      []ProbeConfig          `json:"probes" yaml:"probes"`
	Outputs     []OutputConfig         `json:"outputs" yaml:"outputs"`
	IntervalMs  int                    `json:"interval_ms" yaml:"interval_ms"`
	Verbose     bool                   `json:"verbose" yaml:"verbose"`
}

// Default is a single meat probe on an ESP32-style 12-bit divider.
func Default() Config {
	return Config{
		SensorType: "serial",
		I2C:        I2CConfig{Bus: "2", Address: 0x48, SampleRate: 128},
		Serial:     SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 115200, TimeoutMs: 500},
		Simulation: SimulationConfig{Center: 0.5, Noise: 8},
		Calibration: thermistor.Calibration{
			SupplyVoltage:       3.25,
			FixedResistanceOhms: 990000,
			BitResolution:       4095,
		},
		Sampling: SamplingConfig{
			SampleCount:   DefaultSampleCount,
			SettleDelayMs: DefaultSettleDelayMs,
			ReadRetries:   DefaultReadRetries,
		},
		Probes: []ProbeConfig{{
			Name:    "meat",
			Channel: 0,
			Enabled: true,
			Steinhart: thermistor.Coefficients{
				A: 1.310531755e-3,
				B: 0.9098587657e-4,
				C: 2.646335027e-7,
			},
		}},
		Outputs:    []OutputConfig{{Type: "console"}},
		IntervalMs: DefaultIntervalMs,
	}
}

// Load reads a YAML (.yaml/.yml) or JSON config file on top of the defaults:
// settings the file omits keep their default value. Probes and outputs are
// replaced as a whole when present. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg.Probes = nil
	cfg.Outputs = nil
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.ensureDefaults()
	return cfg, nil
}

func (c *Config) ensureDefaults() {
	def := Default()
	if len(c.Probes) == 0 {
		c.Probes = def.Probes
	}
	if len(c.Outputs) == 0 {
		c.Outputs = def.Outputs
	}
	c.fillOutputDefaults()
}

// fillOutputDefaults completes the connection settings of each output. Output
// intervals stay unset until fillOutputIntervals, so a later interval_ms
// override still reaches them.
func (c *Config) fillOutputDefaults() {
	for i := range c.Outputs {
		o := &c.Outputs[i]
		switch strings.ToLower(o.Type) {
		case "mqtt":
			if o.MQTT == nil {
				o.MQTT = &MQTTConfig{}
			}
			if o.MQTT.Server == "" {
				o.MQTT.Server = "tcp://localhost:1883"
			}
			if o.MQTT.ClientID == "" {
				o.MQTT.ClientID = "thermistor-" + uuid.NewString()[:8]
			}
			if o.MQTT.Topic == "" {
				o.MQTT.Topic = DefaultTopic
			}
		case "http":
			if o.HTTP == nil {
				o.HTTP = &HTTPConfig{}
			}
			if o.HTTP.Listen == "" {
				o.HTTP.Listen = ":8080"
			}
		}
	}
}

// fillOutputIntervals gives every output without its own interval the cycle
// interval.
func (c *Config) fillOutputIntervals() {
	for i := range c.Outputs {
		if c.Outputs[i].IntervalMs == 0 {
			c.Outputs[i].IntervalMs = c.IntervalMs
		}
	}
}

// ApplyEnv lets MQTT_SERVER, MQTT_USERNAME, MQTT_PASSWORD and MQTT_CLIENT_ID
// override every mqtt output, so credentials can live in a .env file.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	for i := range c.Outputs {
		m := c.Outputs[i].MQTT
		if m == nil {
			continue
		}
		if v := getenv("MQTT_SERVER"); v != "" {
			m.Server = v
		}
		if v := getenv("MQTT_USERNAME"); v != "" {
			m.Username = v
		}
		if v := getenv("MQTT_PASSWORD"); v != "" {
			m.Password = v
		}
		if v := getenv("MQTT_CLIENT_ID"); v != "" {
			m.ClientID = v
		}
	}
}

// EnabledProbes returns enabled probes in configuration order.
func (c Config) EnabledProbes() []ProbeConfig {
	out := make([]ProbeConfig, 0, len(c.Probes))
	for _, p := range c.Probes {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// ProbeCalibration is the global calibration with the probe's override applied.
func (c Config) ProbeCalibration(p ProbeConfig) thermistor.Calibration {
	return c.Calibration.Override(p.Calibration)
}

func (c Config) ProbeSampleCount(p ProbeConfig) int {
	if p.SampleCount > 0 {
		return p.SampleCount
	}
	return c.Sampling.SampleCount
}

// Validate reports the first invalid static setting as a configuration error.
func (c Config) Validate() error {
	switch strings.ToLower(c.SensorType) {
	case "ads1115", "real", "serial", "simulation", "fake":
	default:
		return fault.Config("sensor_type", "unknown sensor type %q", c.SensorType)
	}
	if c.Sampling.SampleCount < 1 {
		return fault.Config("sampling.sample_count", "must be >= 1, got %d", c.Sampling.SampleCount)
	}
	if c.Sampling.SettleDelayMs < 0 {
		return fault.Config("sampling.settle_delay_ms", "must be >= 0, got %d", c.Sampling.SettleDelayMs)
	}
	if c.Sampling.ReadRetries < 0 {
		return fault.Config("sampling.read_retries", "must be >= 0, got %d", c.Sampling.ReadRetries)
	}
	if c.IntervalMs <= 0 {
		return fault.Config("interval_ms", "must be > 0, got %d", c.IntervalMs)
	}
	if len(c.EnabledProbes()) == 0 {
		return fault.Config("probes", "no enabled probes")
	}
	names := make(map[string]bool)
	for i, p := range c.Probes {
		field := "probes[" + strconv.Itoa(i) + "]"
		if p.Name == "" {
			return fault.Config(field+".name", "must not be empty")
		}
		if names[p.Name] {
			return fault.Config(field+".name", "duplicate probe %q", p.Name)
		}
		names[p.Name] = true
		if !p.Enabled {
			continue
		}
		if p.Channel < 0 {
			return fault.Config(field+".channel", "must be >= 0, got %d", p.Channel)
		}
		if p.SampleCount < 0 {
			return fault.Config(field+".sample_count", "must be >= 0, got %d", p.SampleCount)
		}
		if err := p.Steinhart.Validate(); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if err := c.ProbeCalibration(p).Validate(); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	for i, o := range c.Outputs {
		field := "outputs[" + strconv.Itoa(i) + "]"
		switch strings.ToLower(o.Type) {
		case "console":
		case "mqtt":
			if o.MQTT == nil || o.MQTT.Server == "" {
				return fault.Config(field+".mqtt.server", "must not be empty")
			}
		case "http":
			if o.HTTP == nil || o.HTTP.Listen == "" {
				return fault.Config(field+".http.listen", "must not be empty")
			}
		default:
			return fault.Config(field+".type", "unknown output type %q", o.Type)
		}
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseKeyMap parses "0=a,1=b" into a channel-keyed map.
func parseKeyMap[T any](s string, parse func(string) (T, error)) (map[int]T, error) {
	out := make(map[int]T)
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid entry %q, want channel=value", p)
		}
		k, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid channel %q: %w", kv[0], err)
		}
		v, err := parse(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid value for channel %d: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func parseKeyFloatMap(s string) (map[int]float64, error) {
	return parseKeyMap(s, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func parseKeyIntMap(s string) (map[int]int, error) {
	return parseKeyMap(s, strconv.Atoi)
}

func parseKeyBoolMap(s string) (map[int]bool, error) {
	return parseKeyMap(s, strconv.ParseBool)
}
