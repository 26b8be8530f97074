package alarm

import (
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/panic-button/internal/domain/button"
)

// TypeSOS tags an alarm request raised by a panic button.
const TypeSOS = "sos"

// Event is a press transition accepted by the pipeline.
// It is consumed synchronously and never persisted.
type Event struct {
	// ID correlates log lines and deliveries of a single press.
	ID string
	// Address is the hardware address of the source button.
	Address string
	// Timestamp is when the button reported the transition.
	Timestamp time.Time
	// Down is true for a press-down transition.
	Down bool
}

// NewEvent converts a press event into an alarm event with a fresh ID.
func NewEvent(press button.PressEvent) Event {
	ts := press.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return Event{
		ID:        uuid.NewString(),
		Address:   press.Address,
		Timestamp: ts,
		Down:      press.Down,
	}
}

// Battery describes the reporting device's power state.
type Battery struct {
	// Level is the charge percentage.
	Level float64
	// Charging is true while connected to power.
	Charging bool
}

// Position is a single location fix passed by value into the formatter.
type Position struct {
	// DeviceID identifies the reporting device on the tracking server.
	DeviceID string
	// Time is when the fix was taken.
	Time time.Time
	// Latitude in decimal degrees.
	Latitude float64
	// Longitude in decimal degrees.
	Longitude float64
	// Altitude in meters.
	Altitude float64
	// Speed in knots.
	Speed float64
	// Course in degrees.
	Course float64
	// Accuracy in meters; it is the fix quality.
	Accuracy float64
	// Battery is the device power state at fix time.
	Battery Battery
	// Mock is true when the fix came from a simulated provider.
	Mock bool
}
