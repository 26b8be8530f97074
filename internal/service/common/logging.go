//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"

	"github.com/oshokin/panic-button/internal/config"
	"github.com/oshokin/panic-button/internal/logger"
)

// ConfigureLogging applies the log settings to the global logger.
// An unknown level is reported and the current level kept.
// The returned function flushes and closes the optional log file.
func ConfigureLogging(ctx context.Context, settings config.Log) (func() error, error) {
	closeLog, err := logger.Configure(settings.Format, settings.File)
	if err != nil {
		return nil, fmt.Errorf("configure logger: %w", err)
	}

	if settings.Level == "" {
		return closeLog, nil
	}

	level, ok := logger.ParseLogLevel(settings.Level)
	if !ok {
		logger.WarnKV(ctx, "Unknown log level, keeping the current one",
			"level", settings.Level, "current", logger.Level().String())

		return closeLog, nil
	}

	logger.SetLevel(level)

	return closeLog, nil
}
