package heartbeat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/panic-button/internal/delivery"
	"github.com/oshokin/panic-button/internal/repository/statuslog"
)

// staticID is a fixed device identifier source.
type staticID string

func (s staticID) DeviceID() string { return string(s) }

// countingSender counts requests without touching the network.
type countingSender struct {
	calls atomic.Int32
}

func (c *countingSender) Send(context.Context, delivery.Request) delivery.Outcome {
	c.calls.Add(1)

	return delivery.Outcome{Success: true, StatusCode: http.StatusOK}
}

func (c *countingSender) SendAsync(ctx context.Context, req delivery.Request, done func(delivery.Outcome)) {
	outcome := c.Send(ctx, req)
	if done != nil {
		done(outcome)
	}
}

// statusServer answers pings with the given code and remembers the last path.
func statusServer(t *testing.T, code int) (*httptest.Server, func() string) {
	t.Helper()

	var (
		mu   sync.Mutex
		last string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		last = r.URL.Path
		mu.Unlock()

		w.WriteHeader(code)
	}))
	t.Cleanup(server.Close)

	return server, func() string {
		mu.Lock()
		defer mu.Unlock()

		return last
	}
}

// TestTick_NoDeviceID sends nothing and records the reason.
func TestTick_NoDeviceID(t *testing.T) {
	t.Parallel()

	sender := new(countingSender)
	status := statuslog.NewMemoryLog(10)
	e := NewEmitter("http://status.local:8007", staticID(""), sender, status)

	require.False(t, e.Tick(t.Context()))
	e.Wait()

	require.Zero(t, sender.calls.Load())

	entries, err := status.Messages(t.Context())
	require.NoError(t, err)
	require.True(t, statuslog.Contains(entries, StatusNoDeviceID))
}

// TestTick_Outcomes records success for 200 and failure for 500.
func TestTick_Outcomes(t *testing.T) {
	t.Parallel()

	cases := map[int]string{
		http.StatusOK:                  StatusPingSucceeded,
		http.StatusInternalServerError: StatusPingFailed,
	}

	for code, want := range cases {
		server, lastPath := statusServer(t, code)
		status := statuslog.NewMemoryLog(10)

		var reported atomic.Bool

		e := NewEmitter(server.URL, staticID("dev-42"), delivery.NewClient(), status,
			WithReporter(func(ok bool) { reported.Store(ok) }))

		require.True(t, e.Tick(t.Context()))
		e.Wait()

		require.Equal(t, "/devices/dev-42/ping", lastPath())

		entries, err := status.Messages(t.Context())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, want, entries[0].Message)
		require.Equal(t, code == http.StatusOK, reported.Load())
	}
}

// TestPingURL escapes the identifier.
func TestPingURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "http://h:8007/devices/dev-42/ping", PingURL("http://h:8007/", "dev-42"))
	require.Equal(t, "http://h/devices/a%2Fb/ping", PingURL("http://h", "a/b"))
}

// TestRun_TicksUntilCancelled keeps pinging on the interval.
func TestRun_TicksUntilCancelled(t *testing.T) {
	t.Parallel()

	sender := new(countingSender)
	e := NewEmitter("http://status.local", staticID("dev-1"), sender, statuslog.NewMemoryLog(10),
		WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- e.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return sender.calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	e.Wait()
}

// TestRun_DefaultInterval pings every three minutes on a fake clock.
func TestRun_DefaultInterval(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		sender := new(countingSender)
		e := NewEmitter("http://status.local", staticID("dev-1"), sender, statuslog.NewMemoryLog(10))

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)

		go func() {
			done <- e.Run(ctx)
		}()

		time.Sleep(3*DefaultInterval + time.Second)
		synctest.Wait()

		require.Equal(t, int32(3), sender.calls.Load())

		cancel()
		require.NoError(t, <-done)
	})
}
