package restart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/oshokin/panic-button/internal/bus"
	"github.com/oshokin/panic-button/internal/config"
	"github.com/oshokin/panic-button/internal/logger"
	"github.com/oshokin/panic-button/internal/service/common"
)

// Options controls the watchdog process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Executable provides an optional dispatcher binary override.
	Executable string
}

var (
	// ErrBusRequired is returned when a signal is sent without a shared bus.
	ErrBusRequired = errors.New("bus url must be configured to send signals")
	// errUnknownTrigger is returned for a signal name that is not a trigger.
	errUnknownTrigger = errors.New("unknown trigger")
)

// ParseTrigger converts a signal name accepted on the command line.
// Only boot and restart can be raised externally.
func ParseTrigger(s string) (Trigger, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "boot":
		return TriggerBoot, nil
	case "restart":
		return TriggerRestart, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, errUnknownTrigger)
	}
}

// Run loads configuration and keeps the dispatcher alive until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	// Load configuration first to get logging settings.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Command line argument overrides the file.
	if opts.Executable != "" {
		cfg.Watchdog.Executable = opts.Executable
	}

	closeLog, err := common.ConfigureLogging(ctx, cfg.Log)
	if err != nil {
		return err
	}

	defer func() {
		_ = closeLog()
	}()

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "panic-watchdog")

	messages, err := openBus(cfg, "panic-watchdog")
	if err != nil {
		return err
	}

	// Ensure bus cleanup on function exit.
	defer func() {
		_ = messages.Close()
	}()

	if cfg.BusURL == "" {
		logger.Warn(ctx, "No bus configured, restart signals only work within this process")
	}

	launcher := NewProcessLauncher(cfg.Watchdog.Executable, cfg.Watchdog.Args, cfg.Watchdog.StagedUpdate, messages)

	watchdogOptions := []Option{
		WithBackoff(NewExponentialBackoff(cfg.Watchdog.BackoffBase, cfg.Watchdog.BackoffMax)),
	}

	// Probe the dispatcher health endpoint unless disabled.
	if cfg.Watchdog.ProbeInterval > 0 {
		client, dialErr := common.Dial(ctx, cfg.HealthAddress, common.WithCallTimeout(cfg.Timeout))
		if dialErr != nil {
			return fmt.Errorf("dial dispatcher health: %w", dialErr)
		}

		defer func() {
			_ = client.Close()
		}()

		watchdogOptions = append(watchdogOptions, WithProbe(client, cfg.Watchdog.ProbeInterval, cfg.Watchdog.ProbeFailures))
	}

	logger.InfoKV(ctx, "Watchdog started",
		"executable", cfg.Watchdog.Executable,
		"health_address", cfg.HealthAddress,
		"probe_interval", cfg.Watchdog.ProbeInterval.String())

	return NewWatchdog(launcher, messages, watchdogOptions...).Run(ctx)
}

// Signal publishes a trigger for a running watchdog over the configured bus.
// It fails unless the broker confirmed the delivery within the configured timeout.
func Signal(ctx context.Context, opts *Options, t Trigger) (err error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if cfg.BusURL == "" {
		return ErrBusRequired
	}

	messages, err := openBus(cfg, "panic-watchdog-signal")
	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, messages.Close())
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	switch t {
	case TriggerBoot:
		if err = messages.Publish(bus.SubjectWatchdogBoot, nil); err != nil {
			return fmt.Errorf("publish boot signal: %w", err)
		}

		if err = bus.Flush(ctx, messages); err != nil {
			return fmt.Errorf("deliver boot signal: %w", err)
		}

		logger.Info(ctx, "Boot signal sent")

		return nil
	case TriggerRestart:
		// No dispatcher is tearing down here, so nothing needs to exit first.
		return announce(ctx, messages, 0)
	default:
		return fmt.Errorf("%s: %w", t, errUnknownTrigger)
	}
}

// openBus connects to NATS when configured, otherwise creates an in-process bus.
//
//nolint:ireturn // The implementation is selected by configuration.
func openBus(cfg *config.Config, name string) (bus.MessageBus, error) {
	if cfg.BusURL == "" {
		return bus.NewMemoryBus(), nil
	}

	messages, err := bus.NewNATSBus(bus.NATSConfig{
		URL:            cfg.BusURL,
		Name:           name,
		ConnectTimeout: cfg.Timeout,
		FlushTimeout:   cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	return messages, nil
}
