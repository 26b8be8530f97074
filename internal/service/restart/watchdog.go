package restart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/panic-button/internal/bus"
	"github.com/oshokin/panic-button/internal/logger"
	"github.com/oshokin/panic-button/internal/service/updater"
)

const (
	// triggerBufferSize is the capacity of the internal trigger queue.
	triggerBufferSize = 16

	// DefaultMinUptime is how long a dispatcher must stay up before its exit
	// relaunches it without a backoff delay.
	DefaultMinUptime = 10 * time.Second
	// DefaultExitWait bounds the wait for an announcing dispatcher to exit.
	DefaultExitWait = time.Minute
	// defaultExitPoll is the liveness polling period of an announcing dispatcher.
	defaultExitPoll = 100 * time.Millisecond
)

var errLaunchPanicked = errors.New("launch panicked")

// Launcher starts the dispatcher, or resumes it when it already runs.
type Launcher interface {
	Launch(ctx context.Context) error
}

// ExitNotifier is implemented by launchers that observe the launched process.
type ExitNotifier interface {
	// Exited receives the wait error of every launched process that ended.
	Exited() <-chan error
}

// Prober checks whether the dispatcher reports itself healthy.
type Prober interface {
	Serving(ctx context.Context, service string) error
}

// Liveness reports whether a process with the PID exists.
type Liveness func(pid int) (bool, error)

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithBackoff sets the retry delays of failed launches.
func WithBackoff(b Backoff) Option {
	return func(w *Watchdog) {
		w.backoff = b
	}
}

// WithMinUptime sets how long a launched dispatcher must run before an exit
// resets the backoff; earlier exits are relaunched after the next backoff delay.
func WithMinUptime(d time.Duration) Option {
	return func(w *Watchdog) {
		w.minUptime = max(d, 0)
	}
}

// WithExitWait sets how often and how long the watchdog polls an announcing
// dispatcher before relaunching it.
func WithExitWait(poll, timeout time.Duration) Option {
	return func(w *Watchdog) {
		if poll > 0 {
			w.exitPoll = poll
		}

		if timeout > 0 {
			w.exitWait = timeout
		}
	}
}

// WithLiveness replaces the process table lookup used to wait for an announcing dispatcher.
func WithLiveness(alive Liveness) Option {
	return func(w *Watchdog) {
		w.alive = alive
	}
}

// WithProbe enables health probing every interval; failures consecutive
// failed probes count as a trigger.
func WithProbe(p Prober, interval time.Duration, failures int) Option {
	return func(w *Watchdog) {
		w.prober = p
		w.probeInterval = interval
		w.probeFailures = max(failures, 1)
	}
}

// Watchdog relaunches the dispatcher on every trigger.
type Watchdog struct {
	// launcher performs the start or resume action.
	launcher Launcher
	// messages delivers restart and boot signals.
	messages bus.MessageBus
	// backoff spaces retries of failed launches.
	backoff Backoff
	// prober checks the dispatcher health, may be nil.
	prober Prober
	// probeInterval is the period of health probes.
	probeInterval time.Duration
	// probeFailures is the number of failed probes that form a trigger.
	probeFailures int
	// minUptime separates a crash loop from a dispatcher that ran for a while.
	minUptime time.Duration
	// exitPoll is the liveness polling period of an announcing dispatcher.
	exitPoll time.Duration
	// exitWait bounds the wait for an announcing dispatcher to exit.
	exitWait time.Duration
	// alive checks whether an announcing dispatcher still runs.
	alive Liveness
	// triggers queues locally raised triggers.
	triggers chan Trigger
}

// NewWatchdog creates a watchdog.
func NewWatchdog(launcher Launcher, messages bus.MessageBus, opts ...Option) *Watchdog {
	w := &Watchdog{
		launcher: launcher,
		messages: messages,
		backoff:   NewExponentialBackoff(time.Second, time.Minute),
		minUptime: DefaultMinUptime,
		exitPoll:  defaultExitPoll,
		exitWait:  DefaultExitWait,
		alive:     updater.IsAlive,
		triggers:  make(chan Trigger, triggerBufferSize),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Notify queues a trigger; it never blocks and drops the trigger when the queue is full.
func (w *Watchdog) Notify(t Trigger) {
	select {
	case w.triggers <- t:
	default:
	}
}

// Run handles the boot trigger and then every incoming trigger until ctx is done.
func (w *Watchdog) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "watchdog")

	restartSub, err := w.messages.Subscribe(bus.SubjectDispatcherRestart)
	if err != nil {
		return fmt.Errorf("subscribe to restart signal: %w", err)
	}

	defer func() {
		_ = restartSub.Unsubscribe()
	}()

	bootSub, err := w.messages.Subscribe(bus.SubjectWatchdogBoot)
	if err != nil {
		return fmt.Errorf("subscribe to boot signal: %w", err)
	}

	defer func() {
		_ = bootSub.Unsubscribe()
	}()

	g, gctx := errgroup.WithContext(ctx)

	if w.prober != nil && w.probeInterval > 0 {
		g.Go(func() error {
			return w.probeLoop(gctx)
		})
	}

	g.Go(func() error {
		return w.loop(gctx, restartSub, bootSub)
	})

	return g.Wait()
}

//nolint:cyclop,funlen // One select over every trigger source reads better than helpers.
func (w *Watchdog) loop(ctx context.Context, restartSub, bootSub bus.Subscription) error {
	var exits <-chan error
	if notifier, ok := w.launcher.(ExitNotifier); ok {
		exits = notifier.Exited()
	}

	// Exit waiters stop with the loop.
	var waiters sync.WaitGroup
	defer waiters.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// announced receives the announcement time once the announcing dispatcher is gone.
	announced := make(chan time.Time, triggerBufferSize)

	retry := time.NewTimer(time.Hour)
	retry.Stop()

	defer retry.Stop()

	var (
		pending    Trigger
		launchedAt time.Time
	)

	handle := func(t Trigger) {
		retry.Stop()

		if err := w.launch(ctx, t); err != nil {
			delay := w.backoff.Next()
			logger.ErrorKV(ctx, "Dispatcher launch failed, retrying", "trigger", t.String(), "retry_in", delay.String(), "error", err)

			pending = t
			retry.Reset(delay)

			return
		}

		launchedAt = time.Now()
		pending = 0
	}

	// relaunch replaces a dispatcher that went away. One that died before
	// minUptime is relaunched after the next backoff delay.
	relaunch := func(t Trigger) {
		if uptime := time.Since(launchedAt); !launchedAt.IsZero() && uptime < w.minUptime {
			retry.Stop()

			delay := w.backoff.Next()
			logger.WarnKV(ctx, "Dispatcher went away soon after launch, delaying relaunch",
				"trigger", t.String(), "uptime", uptime.String(), "retry_in", delay.String())

			pending = t
			retry.Reset(delay)

			return
		}

		w.backoff.Reset()
		handle(t)
	}

	handle(TriggerBoot)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Watchdog stopped")

			return nil
		case msg, ok := <-restartSub.Messages():
			if !ok {
				return fmt.Errorf("restart subscription: %w", bus.ErrClosed)
			}

			pid := AnnouncedPID(msg.Data)
			if pid == 0 {
				relaunch(TriggerRestart)

				continue
			}

			at := time.Now()

			waiters.Go(func() {
				w.awaitExit(ctx, pid, at, announced)
			})
		case at := <-announced:
			// An observed exit may already have replaced the announcing dispatcher.
			if launchedAt.After(at) {
				handle(TriggerRestart)
			} else {
				relaunch(TriggerRestart)
			}
		case _, ok := <-bootSub.Messages():
			if !ok {
				return fmt.Errorf("boot subscription: %w", bus.ErrClosed)
			}

			handle(TriggerBoot)
		case err := <-exits:
			logger.WarnKV(ctx, "Dispatcher exited", "error", err)
			relaunch(TriggerExit)
		case t := <-w.triggers:
			handle(t)
		case <-retry.C:
			if pending != 0 {
				handle(pending)
			}
		}
	}
}

// awaitExit polls until the announcing process pid is gone, or exitWait
// passes, and then reports the announcement time on done.
func (w *Watchdog) awaitExit(ctx context.Context, pid int, at time.Time, done chan<- time.Time) {
	logger.InfoKV(ctx, "Restart announced, waiting for the dispatcher to exit", "pid", pid)

	ticker := time.NewTicker(w.exitPoll)
	defer ticker.Stop()

	deadline := time.NewTimer(w.exitWait)
	defer deadline.Stop()

wait:
	for !w.gone(ctx, pid) {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			logger.WarnKV(ctx, "Announcing dispatcher did not exit in time", "pid", pid, "waited", w.exitWait.String())

			break wait
		case <-ticker.C:
		}
	}

	select {
	case done <- at:
	case <-ctx.Done():
	}
}

// gone reports whether pid exited; a failed lookup counts as gone.
func (w *Watchdog) gone(ctx context.Context, pid int) bool {
	alive, err := w.alive(pid)
	if err != nil {
		logger.WarnKV(ctx, "Failed to check the announcing dispatcher", "pid", pid, "error", err)

		return true
	}

	return !alive
}

func (w *Watchdog) launch(ctx context.Context, t Trigger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errLaunchPanicked, r)
		}
	}()

	logger.InfoKV(ctx, "Launching dispatcher", "trigger", t.String())

	return w.launcher.Launch(ctx)
}

// probeLoop raises TriggerProbe after probeFailures consecutive failed probes.
func (w *Watchdog) probeLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.probeInterval)
	defer ticker.Stop()

	failures := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.prober.Serving(ctx, ""); err != nil {
				failures++
				logger.WarnKV(ctx, "Dispatcher health probe failed", "failures", failures, "error", err)

				if failures >= w.probeFailures {
					failures = 0
					w.Notify(TriggerProbe)
				}

				continue
			}

			failures = 0
		}
	}
}
