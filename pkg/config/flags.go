package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ericogr/thermistor-to-mqtt/pkg/thermistor"
	"github.com/spf13/pflag"
)

// Flags holds command-line overrides. Only flags the user actually set are
// applied; values in the config file win otherwise.
type Flags struct {
	fs *pflag.FlagSet

	ConfigPath      string
	I2CBus          string
	I2CAddress      string
	SampleRate      int
	SerialPort      string
	SensorType      string
	Outputs         string
	OutputIntervals string
	MQTTServer      string
	MQTTUser        string
	MQTTPass        string
	MQTTClientID    string
	MQTTTopic       string
	IntervalMs      int
	SampleCount     int
	SettleDelayMs   int
	ProbeEnabled    string
	ProbeSamples    string
	ProbeFixedOhms  string
	Verbose         bool
}

// BindFlags registers every override on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to JSON or YAML config file")
	fs.StringVar(&f.I2CBus, "i2c-bus", "", "I2C bus (e.g., '2' -> /dev/i2c-2)")
	fs.StringVar(&f.I2CAddress, "i2c-address", "", "I2C address (decimal or 0x hex)")
	fs.IntVar(&f.SampleRate, "sample-rate", 0, "ADS1115 sample rate (SPS)")
	fs.StringVar(&f.SerialPort, "serial-port", "", "Serial port of the ADC bridge")
	fs.StringVar(&f.SensorType, "sensor-type", "", "sensor type: ads1115|serial|simulation")
	fs.StringVar(&f.Outputs, "outputs", "", "Comma-separated outputs (console,mqtt,http)")
	fs.StringVar(&f.OutputIntervals, "output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	fs.StringVar(&f.MQTTServer, "mqtt-server", "", "MQTT server (tcp://host:port)")
	fs.StringVar(&f.MQTTUser, "mqtt-user", "", "MQTT username")
	fs.StringVar(&f.MQTTPass, "mqtt-pass", "", "MQTT password")
	fs.StringVar(&f.MQTTClientID, "mqtt-client-id", "", "MQTT client id")
	fs.StringVar(&f.MQTTTopic, "mqtt-topic", "", "MQTT topic")
	fs.IntVar(&f.IntervalMs, "interval-ms", 0, "Sampling cycle interval in ms")
	fs.IntVar(&f.SampleCount, "sample-count", 0, "Raw reads averaged per probe per cycle")
	fs.IntVar(&f.SettleDelayMs, "settle-delay-ms", 0, "Wait between consecutive raw reads in ms")
	fs.StringVar(&f.ProbeEnabled, "probe-enabled", "", "Per-channel enable e.g. 0=true,1=false")
	fs.StringVar(&f.ProbeSamples, "probe-sample-counts", "", "Per-channel sample count e.g. 0=50,1=25")
	fs.StringVar(&f.ProbeFixedOhms, "probe-fixed-resistance", "", "Per-channel fixed divider resistance e.g. 0=990000")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Log the conversion chain of every probe")
	return f
}

func (f *Flags) changed(name string) bool {
	return f.fs != nil && f.fs.Changed(name)
}

// Load reads the config file, applies environment and flag overrides, and
// validates the result.
func (f *Flags) Load(getenv func(string) string) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(getenv)
	if err := f.Apply(&cfg); err != nil {
		return cfg, err
	}
	cfg.fillOutputDefaults()
	cfg.fillOutputIntervals()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (f *Flags) Apply(cfg *Config) error {
	if f.changed("i2c-bus") {
		cfg.I2C.Bus = f.I2CBus
	}
	if f.changed("i2c-address") {
		v, err := parseIntOrHex(f.I2CAddress)
		if err != nil {
			return fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2C.Address = v
	}
	if f.changed("sample-rate") {
		cfg.I2C.SampleRate = f.SampleRate
	}
	if f.changed("serial-port") {
		cfg.Serial.Port = f.SerialPort
	}
	if f.changed("sensor-type") {
		cfg.SensorType = f.SensorType
	}
	if f.changed("interval-ms") {
		cfg.IntervalMs = f.IntervalMs
	}
	if f.changed("sample-count") {
		cfg.Sampling.SampleCount = f.SampleCount
	}
	if f.changed("settle-delay-ms") {
		cfg.Sampling.SettleDelayMs = f.SettleDelayMs
	}
	if f.changed("verbose") {
		cfg.Verbose = f.Verbose
	}
	if f.changed("outputs") {
		parts := parseCSV(f.Outputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	if f.changed("output-intervals") {
		for _, p := range parseCSV(f.OutputIntervals) {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				return fmt.Errorf("output-intervals: invalid entry %q", p)
			}
			v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				return fmt.Errorf("output-intervals: %w", err)
			}
			for i := range cfg.Outputs {
				if strings.EqualFold(cfg.Outputs[i].Type, strings.TrimSpace(kv[0])) {
					cfg.Outputs[i].IntervalMs = v
				}
			}
		}
	}
	f.applyMQTT(cfg)
	return f.applyProbes(cfg)
}

// applyMQTT maps the mqtt flags onto every mqtt output, creating one if none
// exists.
func (f *Flags) applyMQTT(cfg *Config) {
	names := []string{"mqtt-server", "mqtt-user", "mqtt-pass", "mqtt-client-id", "mqtt-topic"}
	set := false
	for _, n := range names {
		set = set || f.changed(n)
	}
	if !set {
		return
	}
	apply := func(m *MQTTConfig) {
		if f.changed("mqtt-server") {
			m.Server = f.MQTTServer
		}
		if f.changed("mqtt-user") {
			m.Username = f.MQTTUser
		}
		if f.changed("mqtt-pass") {
			m.Password = f.MQTTPass
		}
		if f.changed("mqtt-client-id") {
			m.ClientID = f.MQTTClientID
		}
		if f.changed("mqtt-topic") {
			m.Topic = f.MQTTTopic
		}
	}
	applied := false
	for i := range cfg.Outputs {
		if strings.EqualFold(cfg.Outputs[i].Type, "mqtt") {
			if cfg.Outputs[i].MQTT == nil {
				cfg.Outputs[i].MQTT = &MQTTConfig{}
			}
			apply(cfg.Outputs[i].MQTT)
			applied = true
		}
	}
	if !applied {
		out := OutputConfig{Type: "mqtt", MQTT: &MQTTConfig{}}
		apply(out.MQTT)
		cfg.Outputs = append(cfg.Outputs, out)
	}
}

func (f *Flags) applyProbes(cfg *Config) error {
	if f.changed("probe-enabled") {
		m, err := parseKeyBoolMap(f.ProbeEnabled)
		if err != nil {
			return fmt.Errorf("probe-enabled: %w", err)
		}
		for i := range cfg.Probes {
			if v, ok := m[cfg.Probes[i].Channel]; ok {
				cfg.Probes[i].Enabled = v
			}
		}
	}
	if f.changed("probe-sample-counts") {
		m, err := parseKeyIntMap(f.ProbeSamples)
		if err != nil {
			return fmt.Errorf("probe-sample-counts: %w", err)
		}
		for i := range cfg.Probes {
			if v, ok := m[cfg.Probes[i].Channel]; ok {
				cfg.Probes[i].SampleCount = v
			}
		}
	}
	if f.changed("probe-fixed-resistance") {
		m, err := parseKeyFloatMap(f.ProbeFixedOhms)
		if err != nil {
			return fmt.Errorf("probe-fixed-resistance: %w", err)
		}
		for i := range cfg.Probes {
			v, ok := m[cfg.Probes[i].Channel]
			if !ok {
				continue
			}
			override := cfg.Probes[i].Calibration
			if override == nil {
				override = &thermistor.Calibration{}
			} else {
				c := *override
				override = &c
			}
			override.FixedResistanceOhms = v
			cfg.Probes[i].Calibration = override
		}
	}
	return nil
}
