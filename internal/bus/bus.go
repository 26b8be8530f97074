package bus

import (
	"context"
	"errors"
)

// Subjects published by this project.
const (
	// SubjectTrackingStart asks the tracking task to start reporting.
	SubjectTrackingStart = "panic.tracking.start"
	// SubjectTrackingStarted tells observers (UI toggles) that tracking was switched on.
	SubjectTrackingStarted = "panic.tracking.started"
	// SubjectDispatcherRestart is emitted by the dispatcher on teardown.
	SubjectDispatcherRestart = "panic.dispatcher.restart"
	// SubjectDispatcherStart is a start event delivered to a running dispatcher.
	SubjectDispatcherStart = "panic.dispatcher.start"
	// SubjectWatchdogBoot carries the boot-completed signal to the watchdog.
	SubjectWatchdogBoot = "panic.watchdog.boot"
)

// defaultBufferSize is the per-subscription channel capacity.
const defaultBufferSize = 64

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bus closed")
	// ErrInvalidSubject is returned for an empty subject.
	ErrInvalidSubject = errors.New("invalid subject")
	// ErrNotConnected is returned when buffered publishes cannot reach the server.
	ErrNotConnected = errors.New("bus not connected")
)

// Message is a payload received on a subject.
type Message struct {
	// Subject the message was published to.
	Subject string
	// Data is the raw payload.
	Data []byte
}

// MessageBus publishes and subscribes to subjects.
type MessageBus interface {
	// Publish sends data to every subscriber of subject.
	Publish(subject string, data []byte) error
	// Subscribe starts receiving messages published to subject.
	Subscribe(subject string) (Subscription, error)
	// Close releases the bus and ends every subscription.
	Close() error
}

// Publisher is the publishing half of MessageBus.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Flusher is implemented by buses that buffer publishes on the client.
type Flusher interface {
	// Flush blocks until every buffered publish reached the server.
	Flush(ctx context.Context) error
}

// Flush waits for publishes buffered by p; unbuffered publishers return at once.
func Flush(ctx context.Context, p Publisher) error {
	if f, ok := p.(Flusher); ok {
		return f.Flush(ctx)
	}

	return nil
}

// Subscription is an active subscription.
type Subscription interface {
	// Messages is closed when the subscription ends.
	Messages() <-chan *Message
	// Unsubscribe ends the subscription.
	Unsubscribe() error
}

// validateSubject rejects empty subjects.
func validateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}

	return nil
}
