package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"github.com/ericogr/thermistor-to-mqtt/pkg/output"
	"github.com/ericogr/thermistor-to-mqtt/pkg/output/console"
	httpout "github.com/ericogr/thermistor-to-mqtt/pkg/output/http"
	mqttout "github.com/ericogr/thermistor-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/thermistor-to-mqtt/pkg/probe"
	"github.com/ericogr/thermistor-to-mqtt/pkg/sensor"
)

type outputEntry struct {
	Type       string
	Output     output.Output
	IntervalMs int
	last       time.Time
}

func run(ctx context.Context, cfg config.Config) error {
	probes, err := probe.FromConfig(cfg)
	if err != nil {
		return err
	}

	reader, err := sensor.New(cfg)
	if err != nil {
		return fmt.Errorf("sensor init: %w", err)
	}
	sampler := sensor.NewSampler(reader, cfg.Sampling.ReadRetries)
	defer sampler.Close()

	entries, err := initOutputs(ctx, &cfg, cfg.IntervalMs, probes)
	if err != nil {
		if ctx.Err() != nil {
			log.Printf("shutting down during startup: %v", err)
			return nil
		}
		return err
	}
	defer closeOutputs(entries)

	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if cost := computeCycleCost(probes); cost > interval {
		log.Printf("warning: settle waits alone take %s per cycle, longer than interval %s", cost, interval)
	}

	log.Printf("sampling %d probe(s) every %s with %s sensor", len(probes), interval, cfg.SensorType)
	runLoop(ctx, probe.NewPipeline(sampler, probes, cfg.Verbose), entries, interval)
	return nil
}

// runLoop runs a cycle right away and then on every tick until ctx is done.
// Cancellation is only observed between cycles.
func runLoop(ctx context.Context, pipeline *probe.Pipeline, entries []*outputEntry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		publishDue(entries, pipeline.Cycle(), time.Now())
		select {
		case <-ctx.Done():
			log.Println("shutting down")
			return
		case <-ticker.C:
		}
	}
}

// publishDue hands the cycle to every output whose own interval has elapsed.
func publishDue(entries []*outputEntry, readings []probe.Reading, now time.Time) {
	for _, e := range entries {
		if !e.last.IsZero() && now.Sub(e.last) < time.Duration(e.IntervalMs)*time.Millisecond {
			continue
		}
		if err := e.Output.Publish(readings); err != nil {
			log.Printf("publish to %s failed: %v", e.Type, err)
		}
		e.last = now
	}
}

// computeCycleCost is the settle time one cycle spends waiting between reads,
// a lower bound on the cycle duration.
func computeCycleCost(probes []probe.Probe) time.Duration {
	var total time.Duration
	for _, p := range probes {
		if p.SampleCount > 1 {
			total += time.Duration(p.SampleCount-1) * p.SettleDelay
		}
	}
	return total
}

func initOutputs(ctx context.Context, cfg *config.Config, defaultInterval int, probes []probe.Probe) ([]*outputEntry, error) {
	entries := make([]*outputEntry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs == 0 {
			oc.IntervalMs = defaultInterval
		}
		var (
			o   output.Output
			err error
		)
		switch strings.ToLower(oc.Type) {
		case "console":
			o = console.NewConsole()
		case "mqtt":
			if oc.MQTT == nil {
				err = fmt.Errorf("mqtt output without mqtt settings")
				break
			}
			o, err = mqttout.NewMQTT(ctx, *oc.MQTT, probes)
		case "http":
			if oc.HTTP == nil {
				err = fmt.Errorf("http output without http settings")
				break
			}
			o, err = httpout.NewHTTP(*oc.HTTP)
		default:
			err = fmt.Errorf("unknown output type %q", oc.Type)
		}
		if err != nil {
			closeOutputs(entries)
			return nil, fmt.Errorf("output %s: %w", oc.Type, err)
		}
		entries = append(entries, &outputEntry{Type: oc.Type, Output: o, IntervalMs: oc.IntervalMs})
	}
	return entries, nil
}

func closeOutputs(entries []*outputEntry) {
	for _, e := range entries {
		if err := e.Output.Close(); err != nil {
			log.Printf("close %s: %v", e.Type, err)
		}
	}
}
