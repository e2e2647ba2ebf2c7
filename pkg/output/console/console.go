package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/thermistor-to-mqtt/pkg/output"
	"github.com/ericogr/thermistor-to-mqtt/pkg/probe"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

func (c *ConsoleOutput) Publish(readings []probe.Reading) error {
	for _, r := range readings {
		ts := r.Timestamp.Format(time.RFC3339)
		if !r.OK() {
			fmt.Fprintf(c.w, "%s probe=%s channel=%d fault=%q\n", ts, r.Probe, r.Channel, r.Fault)
			continue
		}
		fmt.Fprintf(c.w, "%s probe=%s channel=%d raw=%.2f celsius=%.2f fahrenheit=%.2f\n",
			ts, r.Probe, r.Channel, r.Raw, r.Celsius, r.Fahrenheit)
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
