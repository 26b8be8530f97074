package heartbeat

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/panic-button/internal/delivery"
	"github.com/oshokin/panic-button/internal/logger"
	"github.com/oshokin/panic-button/internal/repository/statuslog"
)

// Status messages recorded by the emitter.
const (
	StatusPingSucceeded = "ping succeeded"
	StatusPingFailed    = "ping failed"
	StatusNoDeviceID    = "device identifier not found for ping"
)

// DefaultInterval is the time between pings.
const DefaultInterval = 3 * time.Minute

// DeviceIDSource provides the locally stored device identifier.
type DeviceIDSource interface {
	DeviceID() string
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithInterval sets the time between pings.
func WithInterval(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithReporter registers a callback told the outcome of every ping.
func WithReporter(fn func(ok bool)) Option {
	return func(e *Emitter) {
		e.report = fn
	}
}

// Emitter sends the periodic ping.
type Emitter struct {
	// baseURL is the status endpoint base.
	baseURL string
	// interval is the time between pings.
	interval time.Duration
	// ids provides the device identifier.
	ids DeviceIDSource
	// sender delivers the ping.
	sender delivery.Sender
	// status receives the human-readable outcome.
	status statuslog.Log
	// report receives the ping outcome, may be nil.
	report func(ok bool)
	// inflight tracks pings that have not completed yet.
	inflight sync.WaitGroup
}

// NewEmitter creates an emitter for the status endpoint at baseURL.
func NewEmitter(baseURL string, ids DeviceIDSource, sender delivery.Sender, status statuslog.Log, opts ...Option) *Emitter {
	e := &Emitter{
		baseURL:  strings.TrimRight(baseURL, "/"),
		interval: DefaultInterval,
		ids:      ids,
		sender:   sender,
		status:   status,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// PingURL builds the ping address for the device.
func PingURL(baseURL, deviceID string) string {
	return strings.TrimRight(baseURL, "/") + "/devices/" + url.PathEscape(deviceID) + "/ping"
}

// Run pings every interval until ctx is done. The first ping happens after one interval.
func (e *Emitter) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "heartbeat")

	logger.InfoKV(ctx, "Heartbeat started", "base_url", e.baseURL, "interval", e.interval.String())

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Heartbeat stopped")

			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick sends one ping in the background and reports whether it was issued.
// Without a device identifier nothing is sent.
func (e *Emitter) Tick(ctx context.Context) bool {
	deviceID := e.ids.DeviceID()
	if deviceID == "" {
		logger.Warn(ctx, "Device identifier not found, skipping ping")
		e.record(ctx, StatusNoDeviceID)

		return false
	}

	req := delivery.NewRequest(http.MethodPost, PingURL(e.baseURL, deviceID), nil, nil)

	e.inflight.Add(1)

	// In-flight pings outlive the loop.
	e.sender.SendAsync(context.WithoutCancel(ctx), req, func(outcome delivery.Outcome) {
		defer e.inflight.Done()

		if e.report != nil {
			e.report(outcome.Success)
		}

		if outcome.Success {
			logger.DebugKV(ctx, "Ping succeeded", "device_id", deviceID)
			e.record(ctx, StatusPingSucceeded)

			return
		}

		logger.WarnKV(ctx, "Ping failed", "device_id", deviceID, "outcome", outcome.String())
		e.record(ctx, StatusPingFailed)
	})

	return true
}

// Wait blocks until every issued ping completed.
func (e *Emitter) Wait() {
	e.inflight.Wait()
}

func (e *Emitter) record(ctx context.Context, message string) {
	if err := e.status.Add(context.WithoutCancel(ctx), message); err != nil {
		logger.ErrorKV(ctx, "Failed to record status message", "message", message, "error", err)
	}
}
