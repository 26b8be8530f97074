package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and format validations.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing gateway.
	cfg := new(Config)
	require.ErrorIs(t, Validate(cfg), errGatewayRequired)

	// Wrong scheme for the gateway.
	cfg = &Config{GatewayURL: "http://127.0.0.1:8765/buttons"}
	require.ErrorIs(t, Validate(cfg), errBadScheme)

	// Bad heartbeat url.
	cfg = &Config{
		GatewayURL: "ws://127.0.0.1:8765/buttons",
		Heartbeat:  Heartbeat{BaseURL: "ftp://example.com"},
	}
	require.Error(t, Validate(cfg))

	// Bad health address.
	cfg = &Config{
		GatewayURL:    "ws://127.0.0.1:8765/buttons",
		HealthAddress: "no-port",
	}
	require.Error(t, Validate(cfg))

	// Negative delivery timeout.
	cfg = &Config{
		GatewayURL:      "ws://127.0.0.1:8765/buttons",
		DeliveryTimeout: -time.Second,
	}
	require.ErrorIs(t, Validate(cfg), errNegativeDuration)

	// Okay with every optional endpoint.
	cfg = &Config{
		GatewayURL: "wss://gateway.local/buttons",
		BusURL:     "nats://127.0.0.1:4222",
		Heartbeat:  Heartbeat{BaseURL: "http://status.local:8007"},
		SMS:        SMS{URL: "https://sms.local/send"},
	}
	require.NoError(t, Validate(cfg))
}

// TestValidate_Defaults ensures optional fields receive defaults.
func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{GatewayURL: "ws://127.0.0.1:8765/buttons"}
	require.NoError(t, Validate(cfg))

	require.Equal(t, DefaultPreferencesFilename, cfg.PreferencesFile)
	require.Equal(t, DefaultLockFilename, cfg.LockFile)
	require.Equal(t, DefaultHealthAddress, cfg.HealthAddress)
	require.Equal(t, DefaultStatusLimit, cfg.StatusLimit)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, DefaultCheckInterval, cfg.CheckInterval)
	require.Equal(t, DefaultHeartbeatInterval, cfg.Heartbeat.Interval)
	require.Equal(t, DefaultExecutable, cfg.Watchdog.Executable)
	require.Equal(t, DefaultProbeInterval, cfg.Watchdog.ProbeInterval)
	require.Equal(t, DefaultProbeFailures, cfg.Watchdog.ProbeFailures)
	require.Equal(t, DefaultBackoffBase, cfg.Watchdog.BackoffBase)
	require.Equal(t, DefaultBackoffMax, cfg.Watchdog.BackoffMax)
	require.Zero(t, cfg.DeliveryTimeout)

	// Disabled probing stays disabled.
	cfg = &Config{
		GatewayURL: "ws://127.0.0.1:8765/buttons",
		Watchdog:   Watchdog{ProbeInterval: -1},
	}
	require.NoError(t, Validate(cfg))
	require.Negative(t, cfg.Watchdog.ProbeInterval)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		GatewayURL: "ws://127.0.0.1:8765/buttons",
		Heartbeat: Heartbeat{
			BaseURL:  "http://status.local:8007",
			Interval: time.Minute,
		},
		SMS: SMS{
			URL:       "https://sms.local/send",
			APIKey:    "secret",
			Recipient: "+10000000000",
			Message:   "SOS",
		},
		Watchdog: Watchdog{
			Executable: "/usr/local/bin/panic-dispatcher",
			Args:       []string{"--config", "/etc/panic-button.yaml"},
		},
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.GatewayURL, loaded.GatewayURL)
	require.Equal(t, cfg.Heartbeat, loaded.Heartbeat)
	require.Equal(t, cfg.SMS, loaded.SMS)
	require.Equal(t, cfg.Watchdog.Args, loaded.Watchdog.Args)

	_, err = os.Stat(path)
	require.NoError(t, err)

	require.ErrorIs(t, Save(path, nil), errConfigIsNotSet)
}
