package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/panic-button/internal/api/grpc/health"
	"github.com/oshokin/panic-button/internal/bus"
	"github.com/oshokin/panic-button/internal/config"
	"github.com/oshokin/panic-button/internal/delivery"
	"github.com/oshokin/panic-button/internal/gateway"
	"github.com/oshokin/panic-button/internal/logger"
	"github.com/oshokin/panic-button/internal/repository/preferences"
	"github.com/oshokin/panic-button/internal/repository/statuslog"
	"github.com/oshokin/panic-button/internal/service/alarm"
	"github.com/oshokin/panic-button/internal/service/common"
	"github.com/oshokin/panic-button/internal/service/connection"
	"github.com/oshokin/panic-button/internal/service/heartbeat"
	"github.com/oshokin/panic-button/internal/service/power"
	"github.com/oshokin/panic-button/internal/service/restart"
	"github.com/oshokin/panic-button/internal/service/tracking"
)

// Options controls the dispatcher process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// GatewayURL provides an optional gateway address override.
	GatewayURL string
	// HealthAddress provides an optional health listen address override.
	HealthAddress string
}

// DefaultDrainTimeout bounds the wait for in-flight deliveries on teardown
// when no delivery timeout is configured.
const DefaultDrainTimeout = 30 * time.Second

// errDrainTimedOut is reported when in-flight deliveries outlive the drain timeout.
var errDrainTimedOut = errors.New("in-flight deliveries did not finish")

// Run loads configuration, builds the dispatcher and blocks until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	// Load configuration first to get logging settings.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Command line arguments override the file.
	if opts.GatewayURL != "" {
		cfg.GatewayURL = opts.GatewayURL
	}

	if opts.HealthAddress != "" {
		cfg.HealthAddress = opts.HealthAddress
	}

	// Configure the global logger before any context logger is derived from it.
	closeLog, err := common.ConfigureLogging(ctx, cfg.Log)
	if err != nil {
		return err
	}

	defer func() {
		_ = closeLog()
	}()

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "panic-dispatcher")

	// Detect current system actor for audit logging.
	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	logger.InfoKV(ctx, "Starting dispatcher", "actor", actor.String(), "gateway_url", cfg.GatewayURL)

	d, err := New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise dispatcher: %w", err)
	}

	return d.Run(ctx)
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithBus replaces the bus selected by configuration. The caller keeps ownership.
func WithBus(messages bus.MessageBus) Option {
	return func(d *Dispatcher) {
		d.messages = messages
		d.ownsBus = false
	}
}

// WithStatusLog replaces the status log selected by configuration. The caller keeps ownership.
func WithStatusLog(status statuslog.Log) Option {
	return func(d *Dispatcher) {
		d.status = status
	}
}

// WithHealthListener serves health checks on lis instead of the configured address.
func WithHealthListener(lis net.Listener) Option {
	return func(d *Dispatcher) {
		d.healthListener = lis
	}
}

// Dispatcher owns every long-running component of the supervising task.
type Dispatcher struct {
	// cfg holds the validated settings.
	cfg *config.Config
	// messages carries tracking commands and lifecycle signals.
	messages bus.MessageBus
	// ownsBus is set when the dispatcher opened the bus and must close it.
	ownsBus bool
	// prefs is the shared preferences store.
	prefs *preferences.FileStore
	// status receives human-readable outcomes.
	status statuslog.Log
	// sqlite is the status log opened from configuration, if any.
	sqlite *statuslog.SQLiteLog
	// connector dials the button gateway.
	connector *gateway.Connector
	// pipeline handles presses.
	pipeline *alarm.Pipeline
	// supervisor keeps buttons connected.
	supervisor *connection.Supervisor
	// heartbeat pings the status endpoint, nil when disabled.
	heartbeat *heartbeat.Emitter
	// health exposes serving status.
	health *health.Server
	// healthListener overrides the configured health address, may be nil.
	healthListener net.Listener
	// lock keeps the process marked as busy.
	lock *power.WakeLock
}

// New opens every resource named by cfg and wires the components.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (d *Dispatcher, err error) {
	d = &Dispatcher{
		cfg:     cfg,
		ownsBus: true,
		health:  health.NewServer(),
		lock:    power.NewWakeLock(cfg.LockFile),
	}

	for _, opt := range opts {
		opt(d)
	}

	defer func() {
		if err != nil {
			err = multierr.Append(err, d.close())
			d = nil
		}
	}()

	// Open the preferences shared with the tracking task.
	if d.prefs, err = preferences.Open(ctx, cfg.PreferencesFile); err != nil {
		return d, fmt.Errorf("open preferences: %w", err)
	}

	// Select the status log: SQLite when a path is configured, memory otherwise.
	if d.status == nil {
		if cfg.StatusDB != "" {
			if d.sqlite, err = statuslog.OpenSQLite(ctx, cfg.StatusDB, cfg.StatusLimit); err != nil {
				return d, fmt.Errorf("open status log: %w", err)
			}

			d.status = d.sqlite
		} else {
			d.status = statuslog.NewMemoryLog(cfg.StatusLimit)
		}
	}

	// Select the bus: NATS when a URL is configured, in-process otherwise.
	if d.messages == nil {
		if d.messages, err = openBus(cfg); err != nil {
			return d, fmt.Errorf("open bus: %w", err)
		}
	}

	sender := delivery.NewClient(delivery.WithTimeout(cfg.DeliveryTimeout))
	d.connector = gateway.NewConnector(cfg.GatewayURL, cfg.Timeout)

	reconciler := tracking.NewReconciler(d.prefs, tracking.NewBusStarter(d.messages), d.messages)

	d.pipeline = alarm.NewPipeline(alarm.Options{
		Preferences: d.prefs,
		Locator:     d.connector,
		Tracking:    reconciler,
		Sender:      sender,
		Status:      d.status,
		SMS: alarm.SMS{
			URL:       cfg.SMS.URL,
			APIKey:    cfg.SMS.APIKey,
			Recipient: cfg.SMS.Recipient,
			Message:   cfg.SMS.Message,
		},
		LocateTimeout: cfg.Timeout,
	})

	d.supervisor = connection.NewSupervisor(
		d.dialManager,
		connection.NewRegistry(),
		d.pipeline.HandlePress,
		connection.WithInterval(cfg.CheckInterval),
		connection.WithCallTimeout(cfg.Timeout),
		connection.WithReporter(func(serving bool) {
			d.health.SetServing(health.ServiceConnection, serving)
		}),
	)

	if cfg.Heartbeat.BaseURL != "" {
		d.heartbeat = heartbeat.NewEmitter(
			cfg.Heartbeat.BaseURL,
			d.prefs,
			sender,
			d.status,
			heartbeat.WithInterval(cfg.Heartbeat.Interval),
			heartbeat.WithReporter(func(ok bool) {
				d.health.SetServing(health.ServiceHeartbeat, ok)
			}),
		)
	}

	return d, nil
}

// Supervisor returns the connection supervisor.
func (d *Dispatcher) Supervisor() *connection.Supervisor {
	return d.supervisor
}

// Status returns the status log.
//
//nolint:ireturn // The log implementation is selected by configuration.
func (d *Dispatcher) Status() statuslog.Log {
	return d.status
}

// Preferences returns the shared preferences store.
func (d *Dispatcher) Preferences() *preferences.FileStore {
	return d.prefs
}

// Run acquires the wake lock, runs every loop until ctx is canceled and tears down.
// Resources are closed when Run returns; a Dispatcher runs once.
func (d *Dispatcher) Run(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Append(err, d.close())
	}()

	// Hold the wake lock for as long as the loops run.
	if err = d.lock.Acquire(ctx); err != nil {
		return fmt.Errorf("acquire wake lock: %w", err)
	}

	// Start events arrive when the watchdog finds us already running.
	startSub, err := d.messages.Subscribe(bus.SubjectDispatcherStart)
	if err != nil {
		return multierr.Append(fmt.Errorf("subscribe to start events: %w", err), d.lock.Release(ctx))
	}

	defer func() {
		_ = startSub.Unsubscribe()
	}()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if d.healthListener != nil {
			return d.health.Serve(groupCtx, d.healthListener)
		}

		return d.health.ListenAndServe(groupCtx, d.cfg.HealthAddress)
	})

	// A broken watch only loses external updates; the stored values stay usable.
	group.Go(func() error {
		if watchErr := d.prefs.Watch(logger.WithName(groupCtx, "preferences")); watchErr != nil {
			logger.WarnKV(groupCtx, "Preferences watch stopped", "error", watchErr)
		}

		return nil
	})

	group.Go(func() error {
		return d.supervisor.Run(groupCtx)
	})

	if d.heartbeat != nil {
		group.Go(func() error {
			return d.heartbeat.Run(groupCtx)
		})
	}

	group.Go(func() error {
		return d.resume(groupCtx, startSub)
	})

	d.health.SetServing(health.ServiceOverall, true)
	logger.Info(ctx, "Dispatcher running")

	// Loops end on cancellation or on the first fatal error.
	err = group.Wait()

	return multierr.Append(err, d.teardown(ctx))
}

// resume re-acquires the wake lock and checks connections on every start event.
func (d *Dispatcher) resume(ctx context.Context, sub bus.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}

			logger.InfoKV(ctx, "Start event received", "subject", msg.Subject)

			if !d.lock.Held() {
				if err := d.lock.Acquire(ctx); err != nil {
					logger.WarnKV(ctx, "Failed to re-acquire wake lock", "error", err)
				}
			}

			d.supervisor.PeriodicCheck(ctx)
		}
	}
}

// teardown runs after every loop stopped. In-flight deliveries keep running
// on their own contexts and are waited for before resources close.
func (d *Dispatcher) teardown(ctx context.Context) error {
	// Loop contexts are gone; teardown logging and signals still need one.
	ctx = context.WithoutCancel(ctx)

	logger.Info(ctx, "Dispatcher stopping")

	d.health.Shutdown()

	var err error

	if releaseErr := d.lock.Release(ctx); releaseErr != nil {
		err = multierr.Append(err, fmt.Errorf("release wake lock: %w", releaseErr))
	}

	if announceErr := restart.Announce(ctx, d.messages); announceErr != nil {
		err = multierr.Append(err, announceErr)
	}

	if drainErr := d.drain(); drainErr != nil {
		logger.WarnKV(ctx, "Teardown did not wait for every delivery", "error", drainErr)
	}

	return err
}

// drain waits for the pipeline and heartbeat branches still running.
func (d *Dispatcher) drain() error {
	timeout := DefaultDrainTimeout
	if d.cfg.DeliveryTimeout > 0 {
		timeout = d.cfg.DeliveryTimeout + d.cfg.Timeout
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		d.pipeline.Wait()

		if d.heartbeat != nil {
			d.heartbeat.Wait()
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("after %s: %w", timeout, errDrainTimedOut)
	}
}

// close releases every resource the dispatcher opened.
func (d *Dispatcher) close() error {
	var err error

	if d.connector != nil {
		err = multierr.Append(err, d.connector.Close())
	}

	if d.sqlite != nil {
		err = multierr.Append(err, d.sqlite.Close())
	}

	if d.ownsBus && d.messages != nil {
		err = multierr.Append(err, d.messages.Close())
	}

	return err
}

// dialManager is the supervisor factory: every call dials a fresh gateway client.
//
//nolint:ireturn // The supervisor only needs the Manager behavior.
func (d *Dispatcher) dialManager(ctx context.Context) (connection.Manager, error) {
	client, err := d.connector.Dial(ctx)
	if err != nil {
		return nil, err
	}

	return client, nil
}

// openBus connects to NATS when configured, otherwise creates an in-process bus.
//
//nolint:ireturn // The implementation is selected by configuration.
func openBus(cfg *config.Config) (bus.MessageBus, error) {
	if cfg.BusURL == "" {
		return bus.NewMemoryBus(), nil
	}

	messages, err := bus.NewNATSBus(bus.NATSConfig{
		URL:            cfg.BusURL,
		Name:           config.DefaultExecutable,
		ConnectTimeout: cfg.Timeout,
		FlushTimeout:   cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return messages, nil
}
