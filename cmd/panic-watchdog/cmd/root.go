package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/panic-button/internal/config"
	"github.com/oshokin/panic-button/internal/service/packager"
	"github.com/oshokin/panic-button/internal/service/restart"
	"github.com/oshokin/panic-button/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for running the watchdog.
	rootCmd = &cobra.Command{
		Use:   "panic-watchdog [dispatcher-executable]",
		Short: "Keep panic-dispatcher running.",
		Long: `Starts panic-dispatcher and brings it back whenever it stops.

The dispatcher is launched on start, on the boot signal, on the restart signal
it emits during shutdown, when its process exits and after several failed
health probes. When the dispatcher already runs it receives a start event
instead of a second instance. A staged update is applied before each launch.
Failed launches are retried with exponential backoff.

Dispatcher executable can be provided as argument to override config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use executable argument if provided, otherwise rely on config.
			var executable string
			if len(args) > 0 {
				executable = args[0]
			}

			options := &restart.Options{
				ConfigPath: configPath,
				Executable: executable,
			}

			return restart.Run(ctx, options)
		},
	}

	// signalCmd publishes a trigger for a running watchdog.
	signalCmd = &cobra.Command{
		Use:   "signal boot|restart",
		Short: "Send a boot or restart signal to a running watchdog.",
		Long: `Publishes a trigger on the configured bus.

Init scripts send "boot" once the system finished booting. "restart" asks the
watchdog to relaunch the dispatcher. Requires bus_url in the configuration.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"boot", "restart"},
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, err := restart.ParseTrigger(args[0])
			if err != nil {
				return err
			}

			return restart.Signal(cmd.Context(), &restart.Options{ConfigPath: configPath}, trigger)
		},
	}

	// stageCmd stages a new dispatcher binary for the next launch.
	stageCmd = &cobra.Command{
		Use:   "stage <dispatcher-binary>",
		Short: "Stage a new dispatcher binary.",
		Long: `Copies the binary to watchdog.staged_update and writes its checksum.

The watchdog verifies the checksum and replaces the dispatcher executable the
next time it launches the dispatcher.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return packager.Run(cmd.Context(), &packager.Options{
				ConfigPath: configPath,
				Binary:     args[0],
			})
		},
	}
)

// Execute runs the panic-watchdog CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(signalCmd, stageCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// The config flag is shared with every subcommand.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
}
