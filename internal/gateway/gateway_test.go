package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/panic-button/internal/domain/button"
	"github.com/oshokin/panic-button/internal/gateway"
	"github.com/oshokin/panic-button/internal/gateway/gatewaytest"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

func dial(t *testing.T, bridge *gatewaytest.Bridge) *gateway.Client {
	t.Helper()

	client, err := gateway.Dial(t.Context(), bridge.URL())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

// TestClient_ButtonsAndConnect covers the request/response round trips.
func TestClient_ButtonsAndConnect(t *testing.T) {
	t.Parallel()

	bridge := gatewaytest.NewBridge(testAddress, "11:22:33:44:55:66")
	defer bridge.Close()

	client := dial(t, bridge)

	buttons, err := client.Buttons(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{testAddress, "11:22:33:44:55:66"}, buttons)

	require.NoError(t, client.Connect(t.Context(), testAddress))
	require.Equal(t, 1, bridge.ConnectCalls(testAddress))

	bridge.FailConnect(testAddress, true)
	require.ErrorIs(t, client.Connect(t.Context(), testAddress), gateway.ErrRemote)
}

// TestClient_PressRouting delivers press frames to the registered listener only.
func TestClient_PressRouting(t *testing.T) {
	t.Parallel()

	bridge := gatewaytest.NewBridge(testAddress)
	defer bridge.Close()

	client := dial(t, bridge)

	presses := make(chan button.PressEvent, 4)
	require.NoError(t, client.AddPressListener(testAddress, func(e button.PressEvent) {
		presses <- e
	}))

	// Make sure the session is registered on the bridge before pushing.
	_, err := client.Buttons(t.Context())
	require.NoError(t, err)

	require.NoError(t, bridge.Press("00:00:00:00:00:00", true))
	require.NoError(t, bridge.Press(testAddress, true))

	select {
	case e := <-presses:
		require.Equal(t, testAddress, e.Address)
		require.True(t, e.Down)
		require.False(t, e.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("press was not delivered")
	}

	require.Empty(t, presses)
}

// TestClient_Locate returns the bridge fix or its error.
func TestClient_Locate(t *testing.T) {
	t.Parallel()

	bridge := gatewaytest.NewBridge()
	defer bridge.Close()

	client := dial(t, bridge)

	_, err := client.Locate(t.Context())
	require.ErrorIs(t, err, gateway.ErrRemote)

	bridge.SetLocation(gateway.Location{Time: 1_700_000_000_000, Latitude: 1, Longitude: 2, Charging: true})

	pos, err := client.Locate(t.Context())
	require.NoError(t, err)
	require.InDelta(t, 1.0, pos.Latitude, 1e-9)
	require.InDelta(t, 2.0, pos.Longitude, 1e-9)
	require.True(t, pos.Battery.Charging)
	require.Equal(t, int64(1_700_000_000), pos.Time.Unix())
}

// TestClient_DoneOnDrop closes Done when the bridge goes away.
func TestClient_DoneOnDrop(t *testing.T) {
	t.Parallel()

	bridge := gatewaytest.NewBridge(testAddress)
	defer bridge.Close()

	client := dial(t, bridge)

	_, err := client.Buttons(t.Context())
	require.NoError(t, err)

	bridge.DropSessions()

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done was not closed")
	}

	_, err = client.Buttons(t.Context())
	require.ErrorIs(t, err, gateway.ErrClosed)
	require.ErrorIs(t, client.AddPressListener(testAddress, func(button.PressEvent) {}), gateway.ErrClosed)
}

// TestConnector_Locate requires a live session.
func TestConnector_Locate(t *testing.T) {
	t.Parallel()

	bridge := gatewaytest.NewBridge()
	defer bridge.Close()

	bridge.SetLocation(gateway.Location{Latitude: 3, Longitude: 4})

	connector := gateway.NewConnector(bridge.URL(), time.Second)
	defer func() {
		_ = connector.Close()
	}()

	_, err := connector.Locate(t.Context())
	require.ErrorIs(t, err, gateway.ErrNotConnected)

	first, err := connector.Dial(t.Context())
	require.NoError(t, err)

	second, err := connector.Dial(t.Context())
	require.NoError(t, err)

	// Dialing again retires the previous session.
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("previous session was not closed")
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	pos, err := connector.Locate(ctx)
	require.NoError(t, err)
	require.InDelta(t, 3.0, pos.Latitude, 1e-9)
	require.NotNil(t, second)
}

// TestFrame_Decode checks frame decoding and rejection of garbage.
func TestFrame_Decode(t *testing.T) {
	t.Parallel()

	data, err := gateway.Encode(gateway.Frame{Type: gateway.FramePress, Address: testAddress, Down: true})
	require.NoError(t, err)

	f, err := gateway.Decode(data)
	require.NoError(t, err)
	require.Equal(t, gateway.FramePress, f.Type)
	require.True(t, f.Down)

	_, err = gateway.Decode([]byte{0xff})
	require.Error(t, err)
}
