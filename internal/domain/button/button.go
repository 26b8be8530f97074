package button

import "time"

// State is the connection state of a paired button.
type State int

const (
	// Unregistered buttons were discovered but never connected.
	Unregistered State = iota
	// Connecting buttons have a connect request in flight.
	Connecting
	// Connected buttons are linked but nobody listens to them yet.
	Connected
	// ListenerAttached buttons deliver press events to the pipeline.
	ListenerAttached
)

// String returns the lower-case state name used in logs.
func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ListenerAttached:
		return "listener-attached"
	default:
		return "unknown"
	}
}

// Button is a paired hardware button identified by its address.
type Button struct {
	// Address is the Bluetooth device address, unique and stable.
	Address string
	// State is the last known connection state.
	State State
}

// PressEvent is a single up or down transition reported by a button.
type PressEvent struct {
	// Address of the button that was pressed.
	Address string
	// Down is true for press-down and false for press-up.
	Down bool
	// Queued is true when the event was buffered while disconnected.
	Queued bool
	// Timestamp is the hardware event time.
	Timestamp time.Time
}
