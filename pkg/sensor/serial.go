package sensor

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"go.bug.st/serial"
)

const DefaultBaudRate = 115200

// SerialReader talks to a microcontroller that exposes its ADC over a UART.
// Each read sends "A<channel>\n" and expects one line back holding the raw
// count in decimal, or "ERR <reason>".
type SerialReader struct {
	port     io.ReadWriteCloser
	lines    *bufio.Reader
	channels channelSet
}

func NewSerialReader(cfg config.SerialConfig, channels []int) (*SerialReader, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	if cfg.TimeoutMs > 0 {
		if err := port.SetReadTimeout(time.Duration(cfg.TimeoutMs) * time.Millisecond); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}
	return newSerialReader(port, channels), nil
}

func newSerialReader(port io.ReadWriteCloser, channels []int) *SerialReader {
	return &SerialReader{port: port, lines: bufio.NewReader(port), channels: newChannelSet(channels)}
}

func (s *SerialReader) ReadRaw(channel int) (int, error) {
	if err := s.channels.check(channel); err != nil {
		return 0, err
	}
	if _, err := fmt.Fprintf(s.port, "A%d\n", channel); err != nil {
		return 0, fmt.Errorf("write request: %w", err)
	}
	line, err := s.lines.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("read reply: %w", err)
	}
	return parseRawLine(line)
}

func (s *SerialReader) Close() error {
	return s.port.Close()
}

func parseRawLine(line string) (int, error) {
	t := strings.TrimSpace(line)
	if t == "" {
		return 0, fmt.Errorf("empty reply")
	}
	if strings.HasPrefix(t, "ERR") {
		return 0, fmt.Errorf("device error: %s", strings.TrimSpace(strings.TrimPrefix(t, "ERR")))
	}
	v, err := strconv.Atoi(t)
	if err != nil {
		return 0, fmt.Errorf("invalid reply %q: %w", t, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative reading %d", v)
	}
	return v, nil
}
