// Package probe runs one sampling cycle over every configured probe: sample the
// probe's channel, convert the average to a temperature, and record either the
// result or the fault for that probe.
package probe

import (
	"fmt"
	"log"
	"time"

	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"github.com/ericogr/thermistor-to-mqtt/pkg/thermistor"
)

// Sampler yields the averaged raw count of a channel.
type Sampler interface {
	Sample(channel, sampleCount int, settleDelay time.Duration) (float64, error)
}

// Probe is the immutable, fully resolved description of one physical probe.
type Probe struct {
	Name         string
	Channel      int
	Coefficients thermistor.Coefficients
	Calibration  thermistor.Calibration
	SampleCount  int
	SettleDelay  time.Duration
}

// Reading is one probe's outcome for one cycle. Err is set when the probe
// faulted; the temperature fields are then meaningless.
type Reading struct {
	Probe      string    `json:"probe"`
	Channel    int       `json:"channel"`
	Raw        float64   `json:"raw"`
	Voltage    float64   `json:"voltage"`
	Resistance float64   `json:"resistance"`
	Celsius    float64   `json:"celsius"`
	Fahrenheit float64   `json:"fahrenheit"`
	Timestamp  time.Time `json:"timestamp"`
	Fault      string    `json:"fault,omitempty"`
	Err        error     `json:"-"`
}

func (r Reading) OK() bool { return r.Err == nil }

// FromConfig resolves every enabled probe against the global calibration and
// sampling settings.
func FromConfig(cfg config.Config) ([]Probe, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	settle := time.Duration(cfg.Sampling.SettleDelayMs) * time.Millisecond
	enabled := cfg.EnabledProbes()
	probes := make([]Probe, 0, len(enabled))
	for _, p := range enabled {
		probes = append(probes, Probe{
			Name:         p.Name,
			Channel:      p.Channel,
			Coefficients: p.Steinhart,
			Calibration:  cfg.ProbeCalibration(p),
			SampleCount:  cfg.ProbeSampleCount(p),
			SettleDelay:  settle,
		})
	}
	return probes, nil
}

type Pipeline struct {
	sampler Sampler
	probes  []Probe
	verbose bool
	now     func() time.Time
}

func NewPipeline(sampler Sampler, probes []Probe, verbose bool) *Pipeline {
	return &Pipeline{sampler: sampler, probes: probes, verbose: verbose, now: time.Now}
}

func (p *Pipeline) Probes() []Probe { return p.probes }

// Cycle samples and converts every probe in order. A fault on one probe is
// recorded in its Reading and never stops the others.
func (p *Pipeline) Cycle() []Reading {
	ts := p.now()
	out := make([]Reading, 0, len(p.probes))
	for _, pr := range p.probes {
		r := p.read(pr)
		r.Timestamp = ts
		if r.Err != nil {
			r.Fault = r.Err.Error()
			log.Printf("probe %s (channel %d): %v", pr.Name, pr.Channel, r.Err)
		} else if p.verbose {
			log.Printf("probe=%s channel=%d raw=%.2f voltage=%.4fV resistance=%.0fohm temp=%.2fC",
				r.Probe, r.Channel, r.Raw, r.Voltage, r.Resistance, r.Celsius)
		}
		out = append(out, r)
	}
	return out
}

func (p *Pipeline) read(pr Probe) Reading {
	r := Reading{Probe: pr.Name, Channel: pr.Channel}
	raw, err := p.sampler.Sample(pr.Channel, pr.SampleCount, pr.SettleDelay)
	if err != nil {
		r.Err = fmt.Errorf("sample: %w", err)
		return r
	}
	r.Raw = raw
	conv, err := thermistor.Convert(raw, pr.Calibration, pr.Coefficients)
	if err != nil {
		r.Err = fmt.Errorf("convert: %w", err)
		return r
	}
	r.Voltage = conv.Voltage
	r.Resistance = conv.Resistance
	r.Celsius = conv.Celsius
	r.Fahrenheit = conv.Fahrenheit()
	return r
}

// Temperatures maps probe name to Celsius for every probe that did not fault.
func Temperatures(readings []Reading) map[string]float64 {
	out := make(map[string]float64, len(readings))
	for _, r := range readings {
		if r.OK() {
			out[r.Probe] = r.Celsius
		}
	}
	return out
}
