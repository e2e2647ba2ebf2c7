package sensor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"github.com/ericogr/thermistor-to-mqtt/pkg/fault"
)

const (
	DefaultSampleCount = 25
	DefaultSettleDelay = 2 * time.Millisecond
)

// ChannelReader is the hardware capability behind the sampler: one synchronous
// raw ADC read per call. Implementations return a *fault.ConfigurationError for
// channels they were not configured with; any other error is treated as a
// transient read failure.
type ChannelReader interface {
	ReadRaw(channel int) (int, error)
	Close() error
}

// Sampler averages repeated reads of one channel. Reads are serialized, since
// the ADC is a single shared peripheral.
type Sampler struct {
	reader      ChannelReader
	readRetries int
	mu          sync.Mutex

	// Sleep performs the settle wait between reads. Replaced in tests.
	Sleep func(time.Duration)
}

func NewSampler(reader ChannelReader, readRetries int) *Sampler {
	if readRetries < 0 {
		readRetries = 0
	}
	return &Sampler{reader: reader, readRetries: readRetries, Sleep: time.Sleep}
}

// Sample reads channel sampleCount times, waiting settleDelay between
// consecutive reads, and returns the mean of the successful reads.
func (s *Sampler) Sample(channel, sampleCount int, settleDelay time.Duration) (float64, error) {
	if sampleCount < 1 {
		return 0, fault.Config("sample_count", "must be >= 1, got %d", sampleCount)
	}
	if settleDelay < 0 {
		return 0, fault.Config("settle_delay", "must be >= 0, got %s", settleDelay)
	}
	if s.reader == nil {
		return 0, fault.Config("sensor", "no channel reader configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sum     float64
		good    int
		lastErr error
	)
	for i := 0; i < sampleCount; i++ {
		if i > 0 {
			s.Sleep(settleDelay)
		}
		v, err := s.readWithRetry(channel, settleDelay)
		if err != nil {
			if fault.IsConfiguration(err) {
				return 0, err
			}
			lastErr = err
			continue
		}
		sum += float64(v)
		good++
	}
	if good == 0 {
		return 0, fault.Sensor(fmt.Sprintf("all %d reads of channel %d failed", sampleCount, channel), 0, lastErr)
	}
	return sum / float64(good), nil
}

func (s *Sampler) readWithRetry(channel int, settleDelay time.Duration) (int, error) {
	var err error
	for attempt := 0; attempt <= s.readRetries; attempt++ {
		if attempt > 0 {
			s.Sleep(settleDelay)
		}
		var v int
		v, err = s.reader.ReadRaw(channel)
		if err == nil {
			return v, nil
		}
		if fault.IsConfiguration(err) {
			return 0, err
		}
	}
	return 0, err
}

func (s *Sampler) Close() error {
	if s.reader == nil {
		return nil
	}
	return s.reader.Close()
}

// New opens the channel reader selected by cfg.SensorType.
func New(cfg config.Config) (ChannelReader, error) {
	channels := enabledChannels(cfg)
	switch strings.ToLower(cfg.SensorType) {
	case "ads1115", "real":
		if err := checkADS1115Calibration(cfg); err != nil {
			return nil, err
		}
		r, err := NewADS1115Reader(cfg.I2C, channels)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "serial":
		r, err := NewSerialReader(cfg.Serial, channels)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "simulation", "fake":
		return NewFakeReader(cfg.Simulation, cfg.Calibration, channels), nil
	default:
		return nil, fault.Config("sensor_type", "unknown sensor type %q", cfg.SensorType)
	}
}
