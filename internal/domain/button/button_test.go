package button

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStateString covers every named state and the fallback.
func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "unregistered", Unregistered.String())
	require.Equal(t, "connecting", Connecting.String())
	require.Equal(t, "connected", Connected.String())
	require.Equal(t, "listener-attached", ListenerAttached.String())
	require.Equal(t, "unknown", State(42).String())
}
