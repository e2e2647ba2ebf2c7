package sensor

import (
	"math"
	"math/rand"
	"sync"

	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"github.com/ericogr/thermistor-to-mqtt/pkg/thermistor"
)

// FakeReader simulates a divider sitting around a fixed fraction of full scale
// with uniform noise, for running without hardware.
type FakeReader struct {
	channels  channelSet
	center    float64
	noise     float64
	fullScale int
	rnd       *rand.Rand
	mu        sync.Mutex
}

func NewFakeReader(sim config.SimulationConfig, calib thermistor.Calibration, channels []int) *FakeReader {
	fullScale := int(calib.BitResolution)
	if fullScale <= 0 {
		fullScale = 4095
	}
	center := sim.Center
	if center <= 0 || center >= 1 {
		center = 0.5
	}
	seed := sim.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &FakeReader{
		channels:  newChannelSet(channels),
		center:    center * float64(fullScale),
		noise:     math.Abs(sim.Noise),
		fullScale: fullScale,
		rnd:       rand.New(rand.NewSource(seed)),
	}
}

func (f *FakeReader) ReadRaw(channel int) (int, error) {
	if err := f.channels.check(channel); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	// channels are spread a little so probes report different temperatures
	v := f.center + float64(channel)*float64(f.fullScale)/50 + (f.rnd.Float64()*2-1)*f.noise
	raw := int(math.Round(v))
	if raw < 1 {
		raw = 1
	}
	if raw > f.fullScale-1 {
		raw = f.fullScale - 1
	}
	return raw, nil
}

func (f *FakeReader) Close() error { return nil }
