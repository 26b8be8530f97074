package preferences

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/panic-button/internal/logger"
)

// reloadDebounce collapses the burst of events produced by one rewrite.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads the store whenever the file changes until ctx is done.
// The parent directory is watched because writers replace the file by rename.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	defer func() {
		_ = watcher.Close()
	}()

	if err = watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != s.path || event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}

			timer.Reset(reloadDebounce)
		case <-timer.C:
			if err := s.Load(ctx); err != nil {
				logger.ErrorKV(ctx, "Failed to reload preferences", "path", s.path, "error", err)

				continue
			}

			logger.DebugKV(ctx, "Preferences reloaded", "path", s.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.WarnKV(ctx, "Preferences watcher error", "error", err)
		}
	}
}
