package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree. Config flags are persistent so the
// convert sub-command sees the same probes as the daemon.
func NewRootCommand(version string) *cobra.Command {
	var flags *config.Flags
	rootCmd := &cobra.Command{
		Use:           "thermistor-to-mqtt",
		Short:         "Samples NTC thermistor probes and publishes their temperatures",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load(os.Getenv)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	flags = config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(NewConvertCommand(flags))
	rootCmd.AddCommand(NewVersionCommand(version))
	return rootCmd
}

// Execute runs the root command until it returns or SIGINT/SIGTERM arrives.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand(version).ExecuteContext(ctx)
}
