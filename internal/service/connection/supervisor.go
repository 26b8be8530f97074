package connection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/panic-button/internal/domain/button"
	"github.com/oshokin/panic-button/internal/logger"
)

// ErrManagerUnavailable means the manager handle is missing or lost.
// A Manager may return it to request a full re-initialization.
var ErrManagerUnavailable = errors.New("button manager unavailable")

// errPassPanicked is logged when a pass recovers from a panic.
var errPassPanicked = errors.New("connection pass panicked")

// Manager is the button transport as seen by the supervisor.
type Manager interface {
	// Buttons returns the addresses of the paired buttons.
	Buttons(ctx context.Context) ([]string, error)
	// Connect connects to a button.
	Connect(ctx context.Context, address string) error
	// AddPressListener attaches the press callback of a button.
	AddPressListener(address string, fn func(button.PressEvent)) error
	// Done is closed when the handle is no longer usable.
	Done() <-chan struct{}
}

// ManagerFactory creates a fresh manager handle.
type ManagerFactory func(ctx context.Context) (Manager, error)

// PressHandler receives press transitions from every connected button.
type PressHandler func(ctx context.Context, event button.PressEvent)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithInterval sets the period of the connection check.
func WithInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithCallTimeout bounds every manager call; zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.callTimeout = d
	}
}

// WithReporter registers a callback told after every pass whether the manager is usable.
func WithReporter(fn func(serving bool)) Option {
	return func(s *Supervisor) {
		s.report = fn
	}
}

// DefaultInterval is the period of the connection check.
const DefaultInterval = 60 * time.Second

// Supervisor guarantees every known button eventually has exactly one listener.
type Supervisor struct {
	// factory creates manager handles.
	factory ManagerFactory
	// registry records attached listeners.
	registry *Registry
	// onPress receives press events.
	onPress PressHandler
	// interval is the check period.
	interval time.Duration
	// callTimeout bounds manager calls.
	callTimeout time.Duration
	// report receives the manager health after every pass.
	report func(serving bool)

	// mu serializes passes and connect attempts.
	mu      sync.Mutex
	manager Manager

	statesMu sync.RWMutex
	states   map[string]button.State
}

// NewSupervisor creates a supervisor. onPress may be nil.
func NewSupervisor(factory ManagerFactory, registry *Registry, onPress PressHandler, opts ...Option) *Supervisor {
	if registry == nil {
		registry = NewRegistry()
	}

	if onPress == nil {
		onPress = func(context.Context, button.PressEvent) {}
	}

	s := &Supervisor{
		factory:  factory,
		registry: registry,
		onPress:  onPress,
		interval: DefaultInterval,
		states:   make(map[string]button.State),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Registry returns the listener registry.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Run initializes the manager and then checks connections every interval until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "connection")

	s.safeInitialize(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Connection supervisor stopped")

			return nil
		case <-ticker.C:
			s.PeriodicCheck(ctx)
		}
	}
}

// InitializeManager obtains a fresh manager, resets the registry and connects every button.
// On failure the handle is left empty for the next check to retry.
func (s *Supervisor) InitializeManager(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer s.reportLocked()

	return s.initializeLocked(ctx)
}

// ConnectButton connects the button and attaches its listener unless one is attached already.
func (s *Supervisor) ConnectButton(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lostLocked() {
		return ErrManagerUnavailable
	}

	return s.connectLocked(ctx, s.manager, address)
}

// PeriodicCheck runs one supervision pass. It never panics and never returns
// an error: every failure is logged and left for the next pass.
func (s *Supervisor) PeriodicCheck(ctx context.Context) {
	defer s.recoverPass(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	defer s.reportLocked()

	if s.lostLocked() {
		logger.Info(ctx, "Button manager is unavailable, re-initializing")

		if err := s.initializeLocked(ctx); err != nil {
			logger.ErrorKV(ctx, "Button manager initialization failed", "error", err)
		}

		return
	}

	addresses, err := s.buttonsLocked(ctx)
	if err != nil {
		if errors.Is(err, ErrManagerUnavailable) || s.lostLocked() {
			logger.WarnKV(ctx, "Button manager lost, re-initializing", "error", err)

			s.manager = nil
			if err = s.initializeLocked(ctx); err != nil {
				logger.ErrorKV(ctx, "Button manager initialization failed", "error", err)
			}

			return
		}

		logger.ErrorKV(ctx, "Failed to list buttons", "error", err)

		return
	}

	s.connectAllLocked(ctx, addresses)
}

// Buttons returns a snapshot of the known buttons sorted by address.
func (s *Supervisor) Buttons() []button.Button {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	result := make([]button.Button, 0, len(s.states))
	for address, state := range s.states {
		result = append(result, button.Button{Address: address, State: state})
	}

	slices.SortFunc(result, func(a, b button.Button) int {
		return strings.Compare(a.Address, b.Address)
	})

	return result
}

// Serving reports whether a usable manager handle is held.
func (s *Supervisor) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.lostLocked()
}

func (s *Supervisor) safeInitialize(ctx context.Context) {
	defer s.recoverPass(ctx)

	if err := s.InitializeManager(ctx); err != nil {
		logger.ErrorKV(ctx, "Button manager initialization failed", "error", err)
	}
}

func (s *Supervisor) initializeLocked(ctx context.Context) error {
	manager, err := s.factory(ctx)
	if err != nil {
		s.manager = nil

		return fmt.Errorf("create button manager: %w", err)
	}

	if manager == nil {
		s.manager = nil

		return ErrManagerUnavailable
	}

	s.manager = manager
	s.registry.Reset()

	s.statesMu.Lock()
	clear(s.states)
	s.statesMu.Unlock()

	addresses, err := s.buttonsLocked(ctx)
	if err != nil {
		return fmt.Errorf("list buttons: %w", err)
	}

	logger.InfoKV(ctx, "Button manager initialized", "buttons", len(addresses))

	s.connectAllLocked(ctx, addresses)

	return nil
}

func (s *Supervisor) connectAllLocked(ctx context.Context, addresses []string) {
	for _, address := range addresses {
		if err := s.connectLocked(ctx, s.manager, address); err != nil {
			logger.WarnKV(ctx, "Failed to connect button", "address", address, "error", err)
		}
	}
}

func (s *Supervisor) connectLocked(ctx context.Context, manager Manager, address string) error {
	if s.registry.HasListener(address) {
		return nil
	}

	s.setState(address, button.Connecting)

	callCtx, cancel := s.callContext(ctx)
	err := manager.Connect(callCtx, address)

	cancel()

	if err != nil {
		s.setState(address, button.Unregistered)

		return fmt.Errorf("connect %s: %w", address, err)
	}

	s.setState(address, button.Connected)

	pressCtx := logger.WithKV(ctx, "address", address)

	err = manager.AddPressListener(address, func(event button.PressEvent) {
		s.onPress(pressCtx, event)
	})
	if err != nil {
		return fmt.Errorf("attach listener to %s: %w", address, err)
	}

	s.registry.SetListener(address, true)
	s.setState(address, button.ListenerAttached)

	logger.InfoKV(ctx, "Button listener attached", "address", address)

	return nil
}

func (s *Supervisor) buttonsLocked(ctx context.Context) ([]string, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	return s.manager.Buttons(callCtx)
}

// lostLocked reports whether the handle is missing or closed.
func (s *Supervisor) lostLocked() bool {
	if s.manager == nil {
		return true
	}

	select {
	case <-s.manager.Done():
		return true
	default:
		return false
	}
}

func (s *Supervisor) reportLocked() {
	if s.report != nil {
		s.report(!s.lostLocked())
	}
}

func (s *Supervisor) setState(address string, state button.State) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	s.states[address] = state
}

func (s *Supervisor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, s.callTimeout)
}

func (s *Supervisor) recoverPass(ctx context.Context) {
	if r := recover(); r != nil {
		logger.ErrorKV(ctx, "Recovered connection pass", "error", fmt.Errorf("%w: %v", errPassPanicked, r))
	}
}
