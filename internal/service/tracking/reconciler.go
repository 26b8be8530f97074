package tracking

import (
	"context"
	"fmt"
	"sync"

	"github.com/oshokin/panic-button/internal/bus"
	"github.com/oshokin/panic-button/internal/logger"
)

// Flag is the persisted tracking-active flag shared with the tracking task.
type Flag interface {
	TrackingActive() bool
	SetTrackingActive(ctx context.Context, active bool) error
}

// Starter issues the start command to the tracking task.
type Starter interface {
	StartTracking(ctx context.Context, alarmID string) error
}

// BusStarter starts tracking by publishing a fire-and-forget bus message.
type BusStarter struct {
	// publisher sends the start command.
	publisher bus.Publisher
}

// NewBusStarter creates a starter publishing on p.
func NewBusStarter(p bus.Publisher) *BusStarter {
	return &BusStarter{publisher: p}
}

// StartTracking publishes the start command carrying the alarm ID.
func (s *BusStarter) StartTracking(_ context.Context, alarmID string) error {
	if err := s.publisher.Publish(bus.SubjectTrackingStart, []byte(alarmID)); err != nil {
		return fmt.Errorf("publish tracking start: %w", err)
	}

	return nil
}

// Reconciler is the single owner of the tracking-active flag.
type Reconciler struct {
	// flag is the persisted state.
	flag Flag
	// starter issues the start command.
	starter Starter
	// publisher broadcasts the tracking-started signal, may be nil.
	publisher bus.Publisher

	// mu serializes start requests.
	mu sync.Mutex
}

// NewReconciler creates a reconciler. publisher may be nil.
func NewReconciler(flag Flag, starter Starter, publisher bus.Publisher) *Reconciler {
	return &Reconciler{
		flag:      flag,
		starter:   starter,
		publisher: publisher,
	}
}

// RequestStart makes sure tracking is active. It returns true when a start
// command was issued. When the command fails the flag stays false so the
// next request tries again.
func (r *Reconciler) RequestStart(ctx context.Context, alarmID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.flag.TrackingActive() {
		logger.DebugKV(ctx, "Tracking already active", "alarm_id", alarmID)

		return false, nil
	}

	if err := r.starter.StartTracking(ctx, alarmID); err != nil {
		return false, fmt.Errorf("start tracking: %w", err)
	}

	logger.InfoKV(ctx, "Tracking start requested", "alarm_id", alarmID)

	if err := r.flag.SetTrackingActive(ctx, true); err != nil {
		return true, fmt.Errorf("set tracking flag: %w", err)
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(bus.SubjectTrackingStarted, []byte(alarmID)); err != nil {
			logger.WarnKV(ctx, "Failed to broadcast tracking start", "error", err)
		}
	}

	return true, nil
}
