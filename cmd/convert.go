package cmd

import (
	"fmt"
	"os"

	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"github.com/ericogr/thermistor-to-mqtt/pkg/probe"
	"github.com/ericogr/thermistor-to-mqtt/pkg/thermistor"
	"github.com/spf13/cobra"
)

// NewConvertCommand converts a raw count offline with a configured probe's
// calibration and prints every step of the chain.
func NewConvertCommand(flags *config.Flags) *cobra.Command {
	var (
		raw  float64
		name string
	)
	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Converts a raw ADC count to a temperature for a configured probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load(os.Getenv)
			if err != nil {
				return err
			}
			probes, err := probe.FromConfig(cfg)
			if err != nil {
				return err
			}
			p, err := findProbe(probes, name)
			if err != nil {
				return err
			}
			c, err := thermistor.Convert(raw, p.Calibration, p.Coefficients)
			if err != nil {
				return fmt.Errorf("probe %s: %w", p.Name, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "probe = %s\n", p.Name)
			fmt.Fprintf(out, "raw = %g\n", c.Raw)
			fmt.Fprintf(out, "voltage = %.6f\n", c.Voltage)
			fmt.Fprintf(out, "R = %.3f\n", c.Resistance)
			fmt.Fprintf(out, "lnR = %.6f\n", c.LnR)
			fmt.Fprintf(out, "Temp_K = %.4f\n", c.Kelvin)
			fmt.Fprintf(out, "Temp_C = %.4f\n", c.Celsius)
			fmt.Fprintf(out, "Temp_F = %.4f\n", c.Fahrenheit())
			return nil
		},
	}
	convertCmd.Flags().Float64Var(&raw, "raw", 0, "Averaged raw ADC count")
	convertCmd.Flags().StringVar(&name, "probe", "", "Probe name (default: first enabled probe)")
	convertCmd.MarkFlagRequired("raw")
	return convertCmd
}

func findProbe(probes []probe.Probe, name string) (probe.Probe, error) {
	if name == "" && len(probes) > 0 {
		return probes[0], nil
	}
	for _, p := range probes {
		if p.Name == name {
			return p, nil
		}
	}
	return probe.Probe{}, fmt.Errorf("unknown or disabled probe %q", name)
}
