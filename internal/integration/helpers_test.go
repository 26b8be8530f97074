package integration

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/panic-button/internal/bus"
	"github.com/oshokin/panic-button/internal/config"
	"github.com/oshokin/panic-button/internal/gateway/gatewaytest"
	"github.com/oshokin/panic-button/internal/repository/preferences"
	"github.com/oshokin/panic-button/internal/repository/statuslog"
	"github.com/oshokin/panic-button/internal/service/dispatcher"
)

const (
	testAddress  = "AA:BB:CC:DD:EE:FF"
	testDeviceID = "dev-42"
	waitFor      = 5 * time.Second
	tick         = 10 * time.Millisecond
)

// received is one request seen by a recorder.
type received struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// recorder is an HTTP endpoint that remembers every request.
type recorder struct {
	server   *httptest.Server
	status   atomic.Int32
	mu       sync.Mutex
	requests []received
}

// newRecorder starts an endpoint replying with status.
func newRecorder(t *testing.T, status int) *recorder {
	t.Helper()

	r := new(recorder)
	r.status.Store(int32(status))
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)

		r.mu.Lock()
		r.requests = append(r.requests, received{
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  req.URL.Query(),
			Header: req.Header.Clone(),
			Body:   body,
		})
		r.mu.Unlock()

		w.WriteHeader(int(r.status.Load()))
	}))

	t.Cleanup(r.server.Close)

	return r
}

// URL returns the endpoint base address.
func (r *recorder) URL() string {
	return r.server.URL
}

// Requests returns a snapshot of the received requests.
func (r *recorder) Requests() []received {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]received(nil), r.requests...)
}

// Count returns the number of received requests.
func (r *recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.requests)
}

// env is a running dispatcher with every external party simulated.
type env struct {
	bridge   *gatewaytest.Bridge
	tracking *recorder
	sms      *recorder
	messages *bus.MemoryBus
	cfg      *config.Config
	health   string
	d        *dispatcher.Dispatcher
	cancel   context.CancelFunc
	done     chan error
}

// startEnv runs a dispatcher whose preferences point at a tracking recorder.
// tune may adjust the settings before the dispatcher is built.
func startEnv(t *testing.T, tune func(cfg *config.Config)) *env {
	t.Helper()

	e := &env{
		bridge:   gatewaytest.NewBridge(testAddress),
		tracking: newRecorder(t, http.StatusOK),
		sms:      newRecorder(t, http.StatusOK),
		messages: bus.NewMemoryBus(),
		done:     make(chan error, 1),
	}

	t.Cleanup(e.bridge.Close)
	t.Cleanup(func() {
		_ = e.messages.Close()
	})

	dir := t.TempDir()

	e.cfg = &config.Config{
		GatewayURL:      e.bridge.URL(),
		PreferencesFile: filepath.Join(dir, "preferences.json"),
		LockFile:        filepath.Join(dir, "dispatcher.lock"),
		Timeout:         time.Second,
		DeliveryTimeout: 2 * time.Second,
		CheckInterval:   50 * time.Millisecond,
		SMS: config.SMS{
			URL:       e.sms.URL() + "/send",
			APIKey:    "secret-key",
			Recipient: "+10000000000",
			Message:   "SOS",
		},
	}

	if tune != nil {
		tune(e.cfg)
	}

	require.NoError(t, config.Validate(e.cfg))

	// The tracking task normally writes these.
	prefs, err := preferences.Open(t.Context(), e.cfg.PreferencesFile)
	require.NoError(t, err)
	require.NoError(t, prefs.Set(t.Context(), preferences.KeyServerURL, e.tracking.URL()))
	require.NoError(t, prefs.Set(t.Context(), preferences.KeyDeviceID, testDeviceID))

	lc := net.ListenConfig{}
	lis, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = lis.Close()
	})

	e.health = lis.Addr().String()

	e.d, err = dispatcher.New(t.Context(), e.cfg, dispatcher.WithBus(e.messages), dispatcher.WithHealthListener(lis))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	go func() {
		e.done <- e.d.Run(ctx)
	}()

	t.Cleanup(func() {
		e.stop(t)
	})

	require.Eventually(t, e.d.Supervisor().Serving, waitFor, tick)

	return e
}

// stop cancels the dispatcher and waits for its teardown; repeated calls are no-ops.
func (e *env) stop(t *testing.T) {
	t.Helper()

	if e.cancel == nil {
		return
	}

	e.cancel()
	e.cancel = nil

	select {
	case err := <-e.done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("dispatcher did not stop")
	}
}

// statusContains reports whether the status log holds message.
func (e *env) statusContains(t *testing.T, message string) bool {
	t.Helper()

	entries, err := e.d.Status().Messages(t.Context())
	require.NoError(t, err)

	return statuslog.Contains(entries, message)
}

// subscribe returns a subscription on the env bus.
func (e *env) subscribe(t *testing.T, subject string) bus.Subscription {
	t.Helper()

	sub, err := e.messages.Subscribe(subject)
	require.NoError(t, err)

	return sub
}

// countWithin drains sub for d and returns the number of messages seen.
func countWithin(sub bus.Subscription, d time.Duration) int {
	timer := time.NewTimer(d)
	defer timer.Stop()

	count := 0

	for {
		select {
		case <-sub.Messages():
			count++
		case <-timer.C:
			return count
		}
	}
}
