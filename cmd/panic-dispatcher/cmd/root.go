package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/panic-button/internal/config"
	"github.com/oshokin/panic-button/internal/service/client"
	"github.com/oshokin/panic-button/internal/service/dispatcher"
	"github.com/oshokin/panic-button/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// healthAddress overrides the configured health listen address.
	healthAddress string
	// wait makes the status command retry until the dispatcher serves.
	wait bool

	// rootCmd represents the base command for running the dispatcher.
	rootCmd = &cobra.Command{
		Use:   "panic-dispatcher [gateway-url]",
		Short: "Keep panic buttons connected and dispatch SOS alarms.",
		Long: `Runs the panic button dispatcher until interrupted.

Keeps every paired button connected through the button gateway, checking the
connections periodically. A press sends an SOS request with the current
position to the tracking server stored in preferences, an SMS notification
and makes sure the tracking task runs. A status ping is sent periodically
when a heartbeat endpoint is configured.

Gateway URL can be provided as argument to override config (e.g., ws://127.0.0.1:8765/buttons).
On shutdown the dispatcher emits the restart signal for panic-watchdog.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use gateway argument if provided, otherwise rely on config.
			var gatewayURL string
			if len(args) > 0 {
				gatewayURL = args[0]
			}

			options := &dispatcher.Options{
				ConfigPath:    configPath,
				GatewayURL:    gatewayURL,
				HealthAddress: healthAddress,
			}

			return dispatcher.Run(ctx, options)
		},
	}

	// statusCmd asks a running dispatcher for its status.
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running dispatcher.",
		Long: `Queries the gRPC health endpoint of a running dispatcher.

Prints the serving status of the dispatcher, the button connections and the
heartbeat, followed by the recent status messages when status_db is set.
Exits with an error when the dispatcher is not serving unless --wait is given,
in which case it retries until the dispatcher serves.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return client.Run(ctx, &client.Options{
				ConfigPath:    configPath,
				HealthAddress: healthAddress,
				Wait:          wait,
			})
		},
	}
)

// Execute runs the panic-dispatcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&healthAddress, "health-address", "", "override the gRPC health address")

	statusCmd.Flags().BoolVarP(&wait, "wait", "w", false, "retry until the dispatcher is serving")
}
