package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/panic-button/internal/api/grpc/health"
	"github.com/oshokin/panic-button/internal/config"
	"github.com/oshokin/panic-button/internal/logger"
	"github.com/oshokin/panic-button/internal/repository/statuslog"
	"github.com/oshokin/panic-button/internal/service/common"
)

// Options configures the status command.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// HealthAddress overrides the health address from config when specified.
	HealthAddress string
	// Wait retries until the dispatcher reports itself serving.
	Wait bool
	// RetryInterval is the delay between attempts when waiting.
	RetryInterval time.Duration
}

// Report is the dispatcher status at one point in time.
type Report struct {
	// Services maps a health service name to its status.
	Services map[string]string
	// Messages are the recent status log entries, oldest first.
	Messages []statuslog.Entry
}

// Serving reports whether the dispatcher as a whole is serving.
func (r *Report) Serving() bool {
	return r.Services[health.ServiceOverall] == "SERVING"
}

// defaultRetryInterval defines the delay between attempts when waiting.
const defaultRetryInterval = time.Second

// errNotServing is returned when the dispatcher is reachable but not serving.
var errNotServing = errors.New("dispatcher is not serving")

// Run prints the dispatcher status. Without Wait a dispatcher that is not
// serving is an error; with Wait the check repeats until it serves.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "panic-status")

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	// Use health address from options if provided, otherwise use config.
	if opts.HealthAddress != "" {
		cfg.HealthAddress = opts.HealthAddress
	}

	// Connect to the dispatcher with timeout from config.
	client, err := common.Dial(ctx, cfg.HealthAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	// attempt collects and prints the status once, returns whether it serves.
	attempt := func() (bool, error) {
		report, err := Collect(ctx, client, cfg.StatusDB, cfg.StatusLimit)
		if err != nil {
			return false, err
		}

		printReport(ctx, cfg.HealthAddress, report)

		return report.Serving(), nil
	}

	serving, err := attempt()
	if err != nil {
		return err
	}

	if serving {
		return nil
	}

	if !opts.Wait {
		return errNotServing
	}

	interval := opts.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}

	// Setup retry ticker for subsequent attempts.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Retry loop until serving or cancellation.
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if serving, err = attempt(); err != nil {
				return err
			}

			if serving {
				return nil
			}
		}
	}
}

// Collect queries every health service and, when statusDB is set, the recent
// status messages. An unreachable dispatcher is reported as UNKNOWN, not as an error.
func Collect(ctx context.Context, client *common.Client, statusDB string, limit int) (*Report, error) {
	report := &Report{Services: make(map[string]string)}

	for _, service := range []string{health.ServiceOverall, health.ServiceConnection, health.ServiceHeartbeat} {
		status, err := client.Check(ctx, service)
		if err != nil {
			logger.DebugKV(ctx, "Health check failed", "service", serviceName(service), "error", err)
		}

		report.Services[service] = status.String()
	}

	if statusDB == "" {
		return report, nil
	}

	log, err := statuslog.OpenSQLite(ctx, statusDB, limit)
	if err != nil {
		return nil, fmt.Errorf("open status log: %w", err)
	}

	defer func() {
		_ = log.Close()
	}()

	if report.Messages, err = log.Messages(ctx); err != nil {
		return nil, fmt.Errorf("read status log: %w", err)
	}

	return report, nil
}

// printReport logs the report in a human-readable form.
func printReport(ctx context.Context, address string, report *Report) {
	for _, service := range []string{health.ServiceOverall, health.ServiceConnection, health.ServiceHeartbeat} {
		logger.InfoKV(ctx, "Dispatcher status",
			"health_address", address,
			"service", serviceName(service),
			"status", report.Services[service])
	}

	for _, entry := range report.Messages {
		logger.Infof(ctx, "%s %s", entry.Time.Format(time.RFC3339), entry.Message)
	}
}

// serviceName names the overall service for humans.
func serviceName(service string) string {
	if service == health.ServiceOverall {
		return "dispatcher"
	}

	return service
}
