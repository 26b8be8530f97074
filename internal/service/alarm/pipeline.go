package alarm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/oshokin/panic-button/internal/delivery"
	domain "github.com/oshokin/panic-button/internal/domain/alarm"
	"github.com/oshokin/panic-button/internal/domain/button"
	"github.com/oshokin/panic-button/internal/logger"
	"github.com/oshokin/panic-button/internal/protocol/osmand"
	"github.com/oshokin/panic-button/internal/repository/statuslog"
)

// Status messages recorded by the pipeline.
const (
	StatusSOSSent        = "SOS signal sent"
	StatusSOSFailed      = "failed to send SOS signal"
	StatusSMSSent        = "SMS notification sent"
	StatusSMSFailed      = "failed to send SMS notification"
	StatusLocationFailed = "error getting location"
)

// Preferences provides the stored server URL and device identifier.
type Preferences interface {
	ServerURL() string
	DeviceID() string
}

// Locator fetches a single position fix.
type Locator interface {
	Locate(ctx context.Context) (domain.Position, error)
}

// TrackingRequester makes sure the tracking task runs.
type TrackingRequester interface {
	RequestStart(ctx context.Context, alarmID string) (bool, error)
}

// SMS configures the side-channel notification. An empty URL disables it.
type SMS struct {
	// URL of the SMS gateway.
	URL string
	// APIKey is sent verbatim in the Authorization header.
	APIKey string
	// Recipient is the phone number to notify.
	Recipient string
	// Message is the notification text.
	Message string
}

// smsPayload is the fixed-schema body of the notification.
type smsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Options holds the collaborators of a Pipeline.
type Options struct {
	// Preferences provides server URL and device identifier.
	Preferences Preferences
	// Locator provides position fixes.
	Locator Locator
	// Tracking starts the tracking task.
	Tracking TrackingRequester
	// Sender delivers requests.
	Sender delivery.Sender
	// Status receives human-readable outcomes.
	Status statuslog.Log
	// SMS configures the notification.
	SMS SMS
	// LocateTimeout bounds the position fetch; zero disables the bound.
	LocateTimeout time.Duration
}

// Pipeline handles press events.
type Pipeline struct {
	// opts holds the collaborators.
	opts Options
	// inflight tracks branches that have not completed yet.
	inflight sync.WaitGroup
}

// NewPipeline creates a pipeline.
func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// HandlePress processes a press transition; press-up is ignored.
// Tracking activation completes before the position fetch starts;
// the network branches run in the background and outlive ctx.
func (p *Pipeline) HandlePress(ctx context.Context, press button.PressEvent) {
	if !press.Down {
		logger.DebugKV(ctx, "Ignoring press-up", "address", press.Address)

		return
	}

	event := domain.NewEvent(press)
	ctx = logger.WithKV(ctx, "alarm_id", event.ID, "address", event.Address)

	logger.InfoKV(ctx, "Panic button pressed, sending SOS", "queued", press.Queued)

	if _, err := p.opts.Tracking.RequestStart(ctx, event.ID); err != nil {
		logger.ErrorKV(ctx, "Failed to activate tracking", "error", err)
	}

	detached := context.WithoutCancel(ctx)

	p.notify(detached)

	p.inflight.Go(func() {
		defer p.recoverBranch(detached)

		p.deliver(detached)
	})
}

// Wait blocks until every started branch completed.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// notify sends the SMS notification in the background.
func (p *Pipeline) notify(ctx context.Context) {
	sms := p.opts.SMS
	if sms.URL == "" {
		logger.Debug(ctx, "SMS notification disabled")

		return
	}

	req, err := NewSMSRequest(sms)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to build SMS notification", "error", err)
		p.record(ctx, StatusSMSFailed)

		return
	}

	p.inflight.Add(1)

	p.opts.Sender.SendAsync(ctx, req, func(outcome delivery.Outcome) {
		defer p.inflight.Done()

		if outcome.Success {
			logger.Info(ctx, "SMS notification sent successfully")
			p.record(ctx, StatusSMSSent)

			return
		}

		logger.ErrorKV(ctx, "Failed to send SMS notification", "outcome", outcome.String())
		p.record(ctx, StatusSMSFailed)
	})
}

// deliver fetches a fix and sends the SOS request.
func (p *Pipeline) deliver(ctx context.Context) {
	locateCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.opts.LocateTimeout > 0 {
		locateCtx, cancel = context.WithTimeout(ctx, p.opts.LocateTimeout)
	}

	pos, err := p.opts.Locator.Locate(locateCtx)

	cancel()

	if err != nil {
		logger.ErrorKV(ctx, "Error getting location", "error", err)
		p.record(ctx, StatusLocationFailed)

		return
	}

	serverURL := p.opts.Preferences.ServerURL()
	if serverURL == "" {
		logger.Warn(ctx, "Server URL is not configured, skipping SOS request")

		return
	}

	pos.DeviceID = p.opts.Preferences.DeviceID()

	req, err := osmand.Format(serverURL, pos, domain.TypeSOS)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to format SOS request", "error", err)
		p.record(ctx, StatusSOSFailed)

		return
	}

	outcome := p.opts.Sender.Send(ctx, req)
	if outcome.Success {
		logger.InfoKV(ctx, "SOS signal sent successfully", "latitude", pos.Latitude, "longitude", pos.Longitude)
		p.record(ctx, StatusSOSSent)

		return
	}

	logger.ErrorKV(ctx, "Failed to send SOS signal", "outcome", outcome.String())
	p.record(ctx, StatusSOSFailed)
}

// NewSMSRequest builds the notification request.
func NewSMSRequest(sms SMS) (delivery.Request, error) {
	body, err := json.Marshal(smsPayload{To: sms.Recipient, Message: sms.Message})
	if err != nil {
		return delivery.Request{}, fmt.Errorf("marshal sms payload: %w", err)
	}

	return delivery.NewRequest(http.MethodPost, sms.URL, body, map[string]string{
		"Authorization": sms.APIKey,
		"Content-Type":  "application/json",
	}), nil
}

func (p *Pipeline) record(ctx context.Context, message string) {
	if p.opts.Status == nil {
		return
	}

	if err := p.opts.Status.Add(ctx, message); err != nil {
		logger.ErrorKV(ctx, "Failed to record status message", "message", message, "error", err)
	}
}

func (p *Pipeline) recoverBranch(ctx context.Context) {
	if r := recover(); r != nil {
		logger.ErrorKV(ctx, "Recovered alarm delivery", "panic", r)
	}
}
