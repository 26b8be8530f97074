package gateway

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/oshokin/panic-button/internal/domain/alarm"
)

// FrameType identifies the kind of frame on the wire.
type FrameType uint8

const (
	// FrameList asks the bridge for the known buttons.
	FrameList FrameType = iota + 1
	// FrameButtons answers FrameList.
	FrameButtons
	// FrameConnect asks the bridge to connect to a button.
	FrameConnect
	// FrameConnected answers FrameConnect.
	FrameConnected
	// FramePress is an unsolicited press transition.
	FramePress
	// FrameLocate asks for a single position fix.
	FrameLocate
	// FrameLocation answers FrameLocate.
	FrameLocation
	// FrameError answers any request that failed.
	FrameError
)

// Frame is a single message exchanged with the bridge.
type Frame struct {
	// Type is the frame kind.
	Type FrameType `cbor:"1,keyasint"`
	// ID correlates a response with its request; zero for unsolicited frames.
	ID uint64 `cbor:"2,keyasint,omitempty"`
	// Address is the button hardware address.
	Address string `cbor:"3,keyasint,omitempty"`
	// Addresses lists known buttons in FrameButtons.
	Addresses []string `cbor:"4,keyasint,omitempty"`
	// Down is the press state in FramePress.
	Down bool `cbor:"5,keyasint,omitempty"`
	// Queued marks a press buffered by the bridge while disconnected.
	Queued bool `cbor:"6,keyasint,omitempty"`
	// Timestamp is the press time in unix milliseconds.
	Timestamp int64 `cbor:"7,keyasint,omitempty"`
	// Location is the fix carried by FrameLocation.
	Location *Location `cbor:"8,keyasint,omitempty"`
	// Error describes the failure in FrameError.
	Error string `cbor:"9,keyasint,omitempty"`
}

// Location is a position fix as reported by the bridge.
type Location struct {
	// Time is the fix time in unix milliseconds.
	Time int64 `cbor:"1,keyasint"`
	// Latitude in degrees.
	Latitude float64 `cbor:"2,keyasint"`
	// Longitude in degrees.
	Longitude float64 `cbor:"3,keyasint"`
	// Altitude in meters.
	Altitude float64 `cbor:"4,keyasint,omitempty"`
	// Speed in knots.
	Speed float64 `cbor:"5,keyasint,omitempty"`
	// Course in degrees.
	Course float64 `cbor:"6,keyasint,omitempty"`
	// Accuracy in meters.
	Accuracy float64 `cbor:"7,keyasint,omitempty"`
	// BatteryLevel in percent.
	BatteryLevel float64 `cbor:"8,keyasint,omitempty"`
	// Charging is true while the device charges.
	Charging bool `cbor:"9,keyasint,omitempty"`
	// Mock is true for simulated fixes.
	Mock bool `cbor:"10,keyasint,omitempty"`
}

var (
	// frameEncMode encodes frames deterministically.
	//nolint:gochecknoglobals // Encoding modes are immutable and shared.
	frameEncMode cbor.EncMode
	// frameDecMode decodes frames and tolerates unknown keys.
	//nolint:gochecknoglobals // Encoding modes are immutable and shared.
	frameDecMode cbor.DecMode
)

func init() { //nolint:gochecknoinits // Modes must exist before the first frame.
	var err error

	frameEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("create frame encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthAllowed,
	}

	frameDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("create frame decoder mode: %v", err))
	}
}

// Encode serializes a frame.
func Encode(f Frame) ([]byte, error) {
	data, err := frameEncMode.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	return data, nil
}

// Decode parses a frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := frameDecMode.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	return f, nil
}

// Position converts the fix into the domain type; DeviceID is left for the caller.
// A fix without a time is stamped with the current time.
func (l Location) Position() alarm.Position {
	fixTime := time.Now()
	if l.Time != 0 {
		fixTime = time.UnixMilli(l.Time)
	}

	return alarm.Position{
		Time:      fixTime,
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Altitude:  l.Altitude,
		Speed:     l.Speed,
		Course:    l.Course,
		Accuracy:  l.Accuracy,
		Battery: alarm.Battery{
			Level:    l.BatteryLevel,
			Charging: l.Charging,
		},
		Mock: l.Mock,
	}
}
