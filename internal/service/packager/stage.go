package packager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/panic-button/internal/config"
	"github.com/oshokin/panic-button/internal/logger"
	"github.com/oshokin/panic-button/internal/service/updater"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Binary is the new dispatcher executable to stage.
	Binary string
}

var (
	// ErrNoStagePath is returned when the configuration has no staged update path.
	ErrNoStagePath = errors.New("watchdog.staged_update is not configured")
	// errNoBinary is returned when no binary is given.
	errNoBinary = errors.New("binary path must be provided")
	// errNotRegular is returned when the binary is a directory or a device.
	errNotRegular = errors.New("not a regular file")
)

// Run copies the binary to the staged update path and writes its checksum.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "panic-packager")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	staged, err := Stage(opts.Binary, cfg.Watchdog.StagedUpdate)
	if err != nil {
		return err
	}

	printNextSteps(ctx, cfg, staged)

	return nil
}

// Stage copies binary to staged and writes the checksum file next to it.
// The copy is written under a temporary name and renamed into place.
func Stage(binary, staged string) (string, error) {
	if binary == "" {
		return "", errNoBinary
	}

	if staged == "" {
		return "", ErrNoStagePath
	}

	staged = filepath.Clean(staged)

	src, err := os.Open(filepath.Clean(binary))
	if err != nil {
		return "", fmt.Errorf("open binary: %w", err)
	}

	defer func() {
		_ = src.Close()
	}()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat binary: %w", err)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", binary, errNotRegular)
	}

	tmp := staged + ".tmp"

	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, updater.DefaultFileMode)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}

	_, err = io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp)

		return "", fmt.Errorf("copy binary: %w", err)
	}

	if err = os.Rename(tmp, staged); err != nil {
		_ = os.Remove(tmp)

		return "", fmt.Errorf("move staged file: %w", err)
	}

	if err = updater.WriteChecksum(staged); err != nil {
		return "", err
	}

	return staged, nil
}

// printNextSteps logs human-readable guidance for applying the staged binary.
func printNextSteps(ctx context.Context, cfg *config.Config, staged string) {
	var builder strings.Builder

	builder.WriteString("Staged update written to ")
	builder.WriteString(staged)
	builder.WriteString(" with checksum ")
	builder.WriteString(staged + updater.ChecksumSuffix)
	builder.WriteString(".\nIt replaces ")
	builder.WriteString(cfg.Watchdog.Executable)
	builder.WriteString(" the next time panic-watchdog launches the dispatcher.")

	if cfg.BusURL != "" {
		builder.WriteString("\nStop the running dispatcher or send: panic-watchdog signal restart")
	}

	logger.Info(ctx, builder.String())
}
