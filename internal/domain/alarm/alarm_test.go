package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/panic-button/internal/domain/button"
)

// TestNewEvent verifies field mapping and unique identifiers.
func TestNewEvent(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1_700_000_000, 0)
	press := button.PressEvent{
		Address:   "AA:BB:CC:DD:EE:FF",
		Down:      true,
		Timestamp: ts,
	}

	first := NewEvent(press)
	second := NewEvent(press)

	require.Equal(t, press.Address, first.Address)
	require.True(t, first.Down)
	require.Equal(t, ts, first.Timestamp)
	require.NotEmpty(t, first.ID)
	require.NotEqual(t, first.ID, second.ID)
}

// TestNewEvent_ZeroTimestamp ensures a missing hardware timestamp is replaced with now.
func TestNewEvent_ZeroTimestamp(t *testing.T) {
	t.Parallel()

	before := time.Now()
	ev := NewEvent(button.PressEvent{Address: "AA", Down: true})

	require.False(t, ev.Timestamp.Before(before))
}
