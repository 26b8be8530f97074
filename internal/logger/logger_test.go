package logger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" INFO ":  zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"Error\n": zapcore.ErrorLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestContextHelpers checks that WithName and WithKV decorate the context logger.
func TestContextHelpers(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())

	ctx = WithName(ctx, "alarm")
	ctx = WithKV(ctx, "address", "AA:BB")

	InfoKV(ctx, "press received", "down", true)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "alarm", entries[0].LoggerName)
	require.Equal(t, "AA:BB", entries[0].ContextMap()["address"])
	require.Equal(t, true, entries[0].ContextMap()["down"])
}

// TestFromContext_FallsBackToGlobal ensures a bare context yields the global logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestConfigure_RejectsUnknownFormat verifies format validation.
func TestConfigure_RejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := Configure("xml", filepath.Join(t.TempDir(), "x.log"))
	require.ErrorIs(t, err, errUnknownFormat)
}
