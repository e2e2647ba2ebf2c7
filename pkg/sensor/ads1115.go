package sensor

import (
	"fmt"
	"math"
	"time"

	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"github.com/ericogr/thermistor-to-mqtt/pkg/fault"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01

	ads1115FullScaleVolts  = 4.096
	ads1115FullScaleCounts = 32768
)

// ADS1115BitResolution is the count the ADS1115 reports for the supply rail,
// the bit_resolution a divider powered from supplyVoltage needs.
func ADS1115BitResolution(supplyVoltage float64) float64 {
	return supplyVoltage / ads1115FullScaleVolts * ads1115FullScaleCounts
}

// checkADS1115Calibration rejects probes whose bit_resolution is more than 1%
// off the ADS1115 count range for their supply voltage.
func checkADS1115Calibration(cfg config.Config) error {
	for _, p := range cfg.EnabledProbes() {
		calib := cfg.ProbeCalibration(p)
		want := ADS1115BitResolution(calib.SupplyVoltage)
		if math.Abs(calib.BitResolution-want) > want*0.01 {
			return fault.Config("calibration.bit_resolution",
				"probe %q: ads1115 counts span %.0f at %.2fV supply, got %.0f", p.Name, want, calib.SupplyVoltage, calib.BitResolution)
		}
	}
	return nil
}

// ADS1115Reader does single-shot, single-ended conversions on an ADS1115 over
// I2C. Counts are 15-bit (0..32767) at the ±4.096V range, so the calibration
// bit_resolution must describe the supply rail in those counts.
type ADS1115Reader struct {
	dev        *i2c.Dev
	bus        i2c.BusCloser
	channels   channelSet
	sampleRate int
}

func NewADS1115Reader(cfg config.I2CConfig, channels []int) (*ADS1115Reader, error) {
	for _, ch := range channels {
		if ch < 0 || ch > 3 {
			return nil, fmt.Errorf("ads1115: invalid channel %d", ch)
		}
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	dev := &i2c.Dev{Addr: uint16(cfg.Address), Bus: bus}
	return &ADS1115Reader{dev: dev, bus: bus, channels: newChannelSet(channels), sampleRate: cfg.SampleRate}, nil
}

func (s *ADS1115Reader) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *ADS1115Reader) ReadRaw(channel int) (int, error) {
	if err := s.channels.check(channel); err != nil {
		return 0, err
	}
	msb, lsb, err := s.configForChannel(channel, s.sampleRate)
	if err != nil {
		return 0, err
	}
	if err := s.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	time.Sleep(conversionDelay(s.sampleRate))
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	// single-ended inputs only go slightly negative from offset noise
	if raw < 0 {
		raw = 0
	}
	return int(raw), nil
}

// conversionDelay is one conversion period plus 2ms margin.
func conversionDelay(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = 128
	}
	return time.Duration(int(1000.0/float64(sampleRate))+2) * time.Millisecond
}

func (s *ADS1115Reader) configForChannel(channel, sampleRate int) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid channel %d", channel)
	}
	// PGA: ±4.096V -> bits 001
	pga := byte(0x1)
	var dr byte
	switch sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var cfg uint16 = 0x8000 // OS = 1 (start single conversion)
	cfg |= uint16(mux) << 12
	cfg |= uint16(pga) << 9
	cfg |= 1 << 8 // single-shot mode
	cfg |= uint16(dr) << 5
	// comparator disabled (bits 1:0 = 11)
	cfg |= 0x3
	return byte(cfg >> 8), byte(cfg & 0xFF), nil
}
