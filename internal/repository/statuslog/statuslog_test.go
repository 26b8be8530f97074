package statuslog

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// messages extracts the texts for compact assertions.
func messages(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}

	return out
}

// TestMemoryLog_Bounded drops the oldest entries once the limit is reached.
func TestMemoryLog_Bounded(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	log := NewMemoryLog(3)

	for i := range 5 {
		require.NoError(t, log.Add(ctx, fmt.Sprintf("m%d", i)))
	}

	entries, err := log.Messages(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"m2", "m3", "m4"}, messages(entries))
	require.True(t, Contains(entries, "m4"))
	require.False(t, Contains(entries, "m0"))
}

// TestSQLiteLog_PersistsAndTrims checks ordering, trimming and reopening.
func TestSQLiteLog_PersistsAndTrims(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "status.db")

	log, err := OpenSQLite(ctx, path, 2)
	require.NoError(t, err)

	require.NoError(t, log.Add(ctx, "ping failed"))
	require.NoError(t, log.Add(ctx, "ping succeeded"))
	require.NoError(t, log.Add(ctx, "SOS signal sent"))
	require.NoError(t, log.Close())

	reopened, err := OpenSQLite(ctx, path, 2)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = reopened.Close()
	})

	entries, err := reopened.Messages(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ping succeeded", "SOS signal sent"}, messages(entries))
	require.False(t, entries[0].Time.IsZero())
}
