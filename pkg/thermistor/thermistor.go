// Package thermistor converts averaged ADC counts from an NTC voltage divider
// into temperatures with the Steinhart-Hart equation.
//
// Wiring: the thermistor is the top resistor (between supply and the ADC pin)
// and the fixed resistor is the bottom one (between the ADC pin and ground):
//
//	Vmid = Rfixed / (Rtherm + Rfixed) * Vsupply
//	Rtherm = (Vsupply * Rfixed) / Vmid - Rfixed
//
// Swapping the two resistors inverts the temperature curve, so the polarity is
// fixed here and not configurable.
package thermistor

import (
	"math"

	"github.com/ericogr/thermistor-to-mqtt/pkg/fault"
)

// KelvinOffset converts between Kelvin and Celsius.
const KelvinOffset = 273.15

// Calibration describes the divider and ADC shared by one or more probes.
type Calibration struct {
	SupplyVoltage       float64 `json:"supply_voltage" yaml:"supply_voltage"`
	FixedResistanceOhms float64 `json:"fixed_resistance_ohms" yaml:"fixed_resistance_ohms"`
	// BitResolution is the maximum raw count, e.g. 4095 for a 12-bit ADC.
	BitResolution float64 `json:"bit_resolution" yaml:"bit_resolution"`
}

// Coefficients is a Steinhart-Hart triple for one probe type.
type Coefficients struct {
	A float64 `json:"a" yaml:"a"`
	B float64 `json:"b" yaml:"b"`
	C float64 `json:"c" yaml:"c"`
}

// Conversion is the full chain derived from one raw reading.
type Conversion struct {
	Raw        float64
	Voltage    float64
	Resistance float64
	LnR        float64
	Kelvin     float64
	Celsius    float64
}

func (c Conversion) Fahrenheit() float64 {
	return c.Celsius*9.0/5.0 + 32.0
}

// Validate rejects calibrations that cannot describe a real divider.
func (c Calibration) Validate() error {
	switch {
	case !positive(c.SupplyVoltage):
		return fault.Config("supply_voltage", "must be > 0, got %g", c.SupplyVoltage)
	case !positive(c.FixedResistanceOhms):
		return fault.Config("fixed_resistance_ohms", "must be > 0, got %g", c.FixedResistanceOhms)
	case !positive(c.BitResolution):
		return fault.Config("bit_resolution", "must be > 0, got %g", c.BitResolution)
	}
	return nil
}

// Validate rejects an absent (all zero) or non-finite coefficient set.
func (c Coefficients) Validate() error {
	for _, v := range []float64{c.A, c.B, c.C} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fault.Config("steinhart", "coefficients must be finite, got %+v", c)
		}
	}
	if c.A == 0 && c.B == 0 && c.C == 0 {
		return fault.Config("steinhart", "coefficients missing")
	}
	return nil
}

// Override returns c with every non-zero field of o applied on top.
func (c Calibration) Override(o *Calibration) Calibration {
	if o == nil {
		return c
	}
	if o.SupplyVoltage != 0 {
		c.SupplyVoltage = o.SupplyVoltage
	}
	if o.FixedResistanceOhms != 0 {
		c.FixedResistanceOhms = o.FixedResistanceOhms
	}
	if o.BitResolution != 0 {
		c.BitResolution = o.BitResolution
	}
	return c
}

// Convert turns an averaged raw count into a temperature. Readings at either
// rail and any non-finite intermediate are reported as sensor faults.
func Convert(raw float64, calib Calibration, coeffs Coefficients) (Conversion, error) {
	if err := calib.Validate(); err != nil {
		return Conversion{}, err
	}
	if err := coeffs.Validate(); err != nil {
		return Conversion{}, err
	}
	out := Conversion{Raw: raw}

	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return out, fault.Sensor("raw reading not finite", raw, nil)
	}
	if raw <= 0 {
		return out, fault.Sensor("raw reading at low rail (open circuit or disconnected probe)", raw, nil)
	}
	if raw >= calib.BitResolution {
		return out, fault.Sensor("raw reading at high rail (shorted probe)", raw, nil)
	}

	out.Voltage = (raw / calib.BitResolution) * calib.SupplyVoltage
	if out.Voltage <= 0 {
		return out, fault.Sensor("divider voltage not positive", out.Voltage, nil)
	}

	out.Resistance = (calib.SupplyVoltage*calib.FixedResistanceOhms)/out.Voltage - calib.FixedResistanceOhms
	if !positive(out.Resistance) {
		return out, fault.Sensor("thermistor resistance not positive", out.Resistance, nil)
	}

	out.LnR = math.Log(out.Resistance)
	invT := coeffs.A + coeffs.B*out.LnR + coeffs.C*out.LnR*out.LnR*out.LnR
	if invT == 0 || math.IsNaN(invT) || math.IsInf(invT, 0) {
		return out, fault.Sensor("inverse temperature not invertible", invT, nil)
	}

	out.Kelvin = 1.0 / invT
	if math.IsNaN(out.Kelvin) || math.IsInf(out.Kelvin, 0) {
		return out, fault.Sensor("temperature not finite", out.Kelvin, nil)
	}
	out.Celsius = out.Kelvin - KelvinOffset
	return out, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
