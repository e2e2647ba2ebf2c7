// Package fault holds the error taxonomy shared by the sampler, the converter
// and the probe pipeline.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches any *ConfigurationError. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrSensorFault matches any *SensorFaultError. Scoped to one probe and one cycle.
	ErrSensorFault = errors.New("sensor fault")
)

// ConfigurationError reports a missing or invalid static setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// SensorFaultError reports a reading or derived quantity outside the physically
// valid domain, or a channel whose every read failed.
type SensorFaultError struct {
	Reason string
	Value  float64
	Err    error
}

func (e *SensorFaultError) Error() string {
	msg := fmt.Sprintf("sensor fault: %s (value=%g)", e.Reason, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SensorFaultError) Is(target error) bool { return target == ErrSensorFault }

func (e *SensorFaultError) Unwrap() error { return e.Err }

// Config builds a *ConfigurationError.
func Config(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Sensor builds a *SensorFaultError.
func Sensor(reason string, value float64, err error) error {
	return &SensorFaultError{Reason: reason, Value: value, Err: err}
}

// IsConfiguration reports whether err is (or wraps) a configuration error.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

// IsSensorFault reports whether err is (or wraps) a sensor fault.
func IsSensorFault(err error) bool { return errors.Is(err, ErrSensorFault) }
