package output

import "github.com/ericogr/thermistor-to-mqtt/pkg/probe"

// Output receives the readings of one sampling cycle, faulted probes included.
type Output interface {
	Publish([]probe.Reading) error
	Close() error
}

// helper constructors are in subpackages
