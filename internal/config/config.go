package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the dispatcher and the watchdog.
type Config struct {
	// PreferencesFile is the shared key-value store also used by the tracking task.
	PreferencesFile string `yaml:"preferences_file"`
	// GatewayURL is the websocket address of the button gateway.
	GatewayURL string `yaml:"gateway_url"`
	// BusURL is the NATS server URL; empty selects the in-process bus.
	BusURL string `yaml:"bus_url"`
	// HealthAddress is where the dispatcher serves gRPC health checks.
	HealthAddress string `yaml:"health_address"`
	// LockFile is the wake-lock file held while the dispatcher runs.
	LockFile string `yaml:"lock_file"`
	// StatusDB is the SQLite status log path; empty keeps the log in memory.
	StatusDB string `yaml:"status_db"`
	// StatusLimit caps the number of kept status messages.
	StatusLimit int `yaml:"status_limit"`
	// Timeout bounds gateway requests and health probes.
	Timeout time.Duration `yaml:"timeout"`
	// DeliveryTimeout bounds outbound HTTP requests; zero keeps the transport default.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	// CheckInterval is the period of the button connection check.
	CheckInterval time.Duration `yaml:"check_interval"`
	// Heartbeat configures the status ping.
	Heartbeat Heartbeat `yaml:"heartbeat"`
	// SMS configures the side-channel notification.
	SMS SMS `yaml:"sms"`
	// Log configures logging output.
	Log Log `yaml:"log"`
	// Watchdog configures the restart supervisor.
	Watchdog Watchdog `yaml:"watchdog"`
}

// Heartbeat holds the ping endpoint settings.
type Heartbeat struct {
	// BaseURL is the status endpoint base, e.g. http://host:8007; empty disables pings.
	BaseURL string `yaml:"base_url"`
	// Interval is the time between pings.
	Interval time.Duration `yaml:"interval"`
}

// SMS holds the side-channel gateway settings.
type SMS struct {
	// URL of the SMS gateway; empty disables notifications.
	URL string `yaml:"url"`
	// APIKey is sent verbatim in the Authorization header.
	APIKey string `yaml:"api_key"`
	// Recipient is the phone number that receives the notification.
	Recipient string `yaml:"recipient"`
	// Message is the notification text.
	Message string `yaml:"message"`
}

// Log holds logger settings.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is console or json.
	Format string `yaml:"format"`
	// File optionally duplicates the log into a file.
	File string `yaml:"file"`
}

// Watchdog holds restart supervisor settings.
type Watchdog struct {
	// Executable is the dispatcher binary to launch.
	Executable string `yaml:"executable"`
	// Args are passed to the dispatcher binary.
	Args []string `yaml:"args"`
	// ProbeInterval is the period of the gRPC health probe; a negative value disables probing.
	ProbeInterval time.Duration `yaml:"probe_interval"`
	// ProbeFailures is the number of consecutive failed probes that triggers a relaunch.
	ProbeFailures int `yaml:"probe_failures"`
	// StagedUpdate is a replacement binary applied before the next launch.
	StagedUpdate string `yaml:"staged_update"`
	// BackoffBase is the first delay before retrying a failed launch.
	BackoffBase time.Duration `yaml:"backoff_base"`
	// BackoffMax caps the retry delay.
	BackoffMax time.Duration `yaml:"backoff_max"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "panic-button-settings.yaml"

	// DefaultPreferencesFilename is the default shared preferences file.
	DefaultPreferencesFilename = "panic-button-preferences.json"

	// DefaultLockFilename is the default wake-lock file.
	DefaultLockFilename = "panic-dispatcher.lock"

	// DefaultHealthAddress is the default gRPC health listen address.
	DefaultHealthAddress = "127.0.0.1:50061"

	// DefaultExecutable is the dispatcher binary name launched by the watchdog.
	DefaultExecutable = "panic-dispatcher"

	// DefaultTimeout is the default duration for gateway requests and probes.
	DefaultTimeout = 5 * time.Second

	// DefaultCheckInterval is the period of the button connection check.
	DefaultCheckInterval = 60 * time.Second

	// DefaultHeartbeatInterval is the period of the status ping.
	DefaultHeartbeatInterval = 3 * time.Minute

	// DefaultStatusLimit is the number of status messages kept.
	DefaultStatusLimit = 100

	// DefaultProbeInterval is the period of the watchdog health probe.
	DefaultProbeInterval = 30 * time.Second

	// DefaultProbeFailures is the number of failed probes before a relaunch.
	DefaultProbeFailures = 3

	// DefaultBackoffBase is the first relaunch retry delay.
	DefaultBackoffBase = time.Second

	// DefaultBackoffMax caps the relaunch retry delay.
	DefaultBackoffMax = time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errGatewayRequired is returned when the gateway URL is missing.
	errGatewayRequired = errors.New("gateway url must be provided")
	// errBadScheme is returned when a URL has an unexpected scheme.
	errBadScheme = errors.New("unexpected url scheme")
	// errNegativeDuration is returned for negative intervals.
	errNegativeDuration = errors.New("duration must not be negative")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills defaults in place.
//
//nolint:cyclop // A flat list of checks reads better than helpers here.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.GatewayURL == "" {
		return errGatewayRequired
	}

	if err := checkURL(cfg.GatewayURL, "ws", "wss"); err != nil {
		return fmt.Errorf("invalid gateway url: %w", err)
	}

	if cfg.BusURL != "" {
		if err := checkURL(cfg.BusURL, "nats", "tls"); err != nil {
			return fmt.Errorf("invalid bus url: %w", err)
		}
	}

	if cfg.Heartbeat.BaseURL != "" {
		if err := checkURL(cfg.Heartbeat.BaseURL, "http", "https"); err != nil {
			return fmt.Errorf("invalid heartbeat url: %w", err)
		}
	}

	if cfg.SMS.URL != "" {
		if err := checkURL(cfg.SMS.URL, "http", "https"); err != nil {
			return fmt.Errorf("invalid sms url: %w", err)
		}
	}

	if cfg.DeliveryTimeout < 0 {
		return fmt.Errorf("delivery_timeout: %w", errNegativeDuration)
	}

	if cfg.HealthAddress == "" {
		cfg.HealthAddress = DefaultHealthAddress
	}

	if _, _, err := net.SplitHostPort(cfg.HealthAddress); err != nil {
		return fmt.Errorf("invalid health address: %w", err)
	}

	applyDefaults(cfg)

	return nil
}

// applyDefaults fills every optional field left empty.
func applyDefaults(cfg *Config) {
	if cfg.PreferencesFile == "" {
		cfg.PreferencesFile = DefaultPreferencesFilename
	}

	if cfg.LockFile == "" {
		cfg.LockFile = DefaultLockFilename
	}

	if cfg.StatusLimit <= 0 {
		cfg.StatusLimit = DefaultStatusLimit
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}

	if cfg.Heartbeat.Interval <= 0 {
		cfg.Heartbeat.Interval = DefaultHeartbeatInterval
	}

	if cfg.Watchdog.Executable == "" {
		cfg.Watchdog.Executable = DefaultExecutable
	}

	if cfg.Watchdog.ProbeInterval == 0 {
		cfg.Watchdog.ProbeInterval = DefaultProbeInterval
	}

	if cfg.Watchdog.ProbeFailures <= 0 {
		cfg.Watchdog.ProbeFailures = DefaultProbeFailures
	}

	if cfg.Watchdog.BackoffBase <= 0 {
		cfg.Watchdog.BackoffBase = DefaultBackoffBase
	}

	if cfg.Watchdog.BackoffMax < cfg.Watchdog.BackoffBase {
		cfg.Watchdog.BackoffMax = max(DefaultBackoffMax, cfg.Watchdog.BackoffBase)
	}
}

// checkURL parses raw and ensures it uses one of the allowed schemes.
func checkURL(raw string, schemes ...string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}

	for _, scheme := range schemes {
		if u.Scheme == scheme {
			return nil
		}
	}

	return fmt.Errorf("%q: %w", u.Scheme, errBadScheme)
}
