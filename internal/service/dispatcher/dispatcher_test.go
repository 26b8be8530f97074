package dispatcher_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/panic-button/internal/bus"
	"github.com/oshokin/panic-button/internal/config"
	"github.com/oshokin/panic-button/internal/gateway/gatewaytest"
	"github.com/oshokin/panic-button/internal/service/common"
	"github.com/oshokin/panic-button/internal/service/dispatcher"
	"github.com/oshokin/panic-button/internal/service/power"
	"github.com/oshokin/panic-button/internal/service/restart"
)

const (
	testAddress = "AA:BB:CC:DD:EE:FF"
	waitFor     = 5 * time.Second
	tick        = 10 * time.Millisecond
)

// testConfig returns validated settings rooted in a temporary directory.
func testConfig(t *testing.T, gatewayURL string) *config.Config {
	t.Helper()

	dir := t.TempDir()

	cfg := &config.Config{
		GatewayURL:      gatewayURL,
		PreferencesFile: filepath.Join(dir, "preferences.json"),
		LockFile:        filepath.Join(dir, "dispatcher.lock"),
		Timeout:         time.Second,
		CheckInterval:   50 * time.Millisecond,
	}

	require.NoError(t, config.Validate(cfg))

	return cfg
}

// listen reserves a local port for the health server.
func listen(t *testing.T) net.Listener {
	t.Helper()

	lc := net.ListenConfig{}

	lis, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = lis.Close()
	})

	return lis
}

// TestNew_RejectsBrokenPreferences ensures unreadable preferences stop the startup.
func TestNew_RejectsBrokenPreferences(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "ws://127.0.0.1:1/buttons")
	require.NoError(t, os.WriteFile(cfg.PreferencesFile, []byte("{not json"), 0o600))

	d, err := dispatcher.New(t.Context(), cfg)
	require.Error(t, err)
	require.Nil(t, d)
}

// TestRun_ServesAndAnnouncesRestart runs the dispatcher against a bridge and checks teardown.
func TestRun_ServesAndAnnouncesRestart(t *testing.T) {
	t.Parallel()

	bridge := gatewaytest.NewBridge(testAddress)
	defer bridge.Close()

	messages := bus.NewMemoryBus()
	defer func() {
		_ = messages.Close()
	}()

	restartSub, err := messages.Subscribe(bus.SubjectDispatcherRestart)
	require.NoError(t, err)

	cfg := testConfig(t, bridge.URL())
	lis := listen(t)
	healthAddress := lis.Addr().String()

	d, err := dispatcher.New(t.Context(), cfg, dispatcher.WithBus(messages), dispatcher.WithHealthListener(lis))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- d.Run(ctx)
	}()

	// The button converges and the health endpoint reports it.
	require.Eventually(t, d.Supervisor().Serving, waitFor, tick)
	require.Equal(t, 1, bridge.ConnectCalls(testAddress))

	client, err := common.Dial(ctx, healthAddress, common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	require.Eventually(t, func() bool {
		return client.Serving(ctx, "") == nil && client.Serving(ctx, "connection") == nil
	}, waitFor, tick)

	// The wake lock is held while running.
	_, err = os.Stat(cfg.LockFile)
	require.NoError(t, err)

	cancel()

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("dispatcher did not stop")
	}

	// Teardown emitted the restart signal and released the lock.
	select {
	case msg := <-restartSub.Messages():
		require.Equal(t, bus.SubjectDispatcherRestart, msg.Subject)
		require.Equal(t, os.Getpid(), restart.AnnouncedPID(msg.Data))
	case <-time.After(waitFor):
		t.Fatal("restart signal not emitted")
	}

	_, err = os.Stat(cfg.LockFile)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_StartEventReacquiresLock checks that a start event restores a lost wake lock.
func TestRun_StartEventReacquiresLock(t *testing.T) {
	t.Parallel()

	bridge := gatewaytest.NewBridge(testAddress)
	defer bridge.Close()

	messages := bus.NewMemoryBus()
	defer func() {
		_ = messages.Close()
	}()

	cfg := testConfig(t, bridge.URL())

	d, err := dispatcher.New(t.Context(), cfg, dispatcher.WithBus(messages), dispatcher.WithHealthListener(listen(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- d.Run(ctx)
	}()

	require.Eventually(t, d.Supervisor().Serving, waitFor, tick)

	// Something removed the lock behind our back.
	require.NoError(t, os.Remove(cfg.LockFile))
	require.NoError(t, messages.Publish(bus.SubjectDispatcherStart, nil))

	require.Eventually(t, func() bool {
		contents, readErr := os.ReadFile(cfg.LockFile)

		return readErr == nil && string(contents) == strconv.Itoa(os.Getpid())
	}, waitFor, tick)

	cancel()
	require.NoError(t, <-done)
}

// TestRun_LockHeldByAnotherProcess ensures a second dispatcher refuses to start.
func TestRun_LockHeldByAnotherProcess(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "ws://127.0.0.1:1/buttons")

	// The parent process is alive for the whole test.
	require.NoError(t, os.WriteFile(cfg.LockFile, []byte(strconv.Itoa(os.Getppid())), 0o600))

	messages := bus.NewMemoryBus()
	defer func() {
		_ = messages.Close()
	}()

	d, err := dispatcher.New(t.Context(), cfg, dispatcher.WithBus(messages), dispatcher.WithHealthListener(listen(t)))
	require.NoError(t, err)

	err = d.Run(t.Context())
	require.ErrorIs(t, err, power.ErrHeld)
}
