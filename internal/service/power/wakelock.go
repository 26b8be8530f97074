package power

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/oshokin/panic-button/internal/logger"
	"github.com/oshokin/panic-button/internal/service/updater"
)

// lockFilePermissions restricts the lock file to its owner.
const lockFilePermissions = 0o600

// ErrHeld is returned when another live process owns the lock.
var ErrHeld = errors.New("wake lock held by another process")

// WakeLock is an exclusive lock file owned by this process.
type WakeLock struct {
	// path is the lock file location.
	path string
	// pid is the PID written into the file.
	pid int

	mu sync.Mutex
}

// NewWakeLock creates an unacquired lock at path.
func NewWakeLock(path string) *WakeLock {
	return &WakeLock{
		path: filepath.Clean(path),
		pid:  os.Getpid(),
	}
}

// Acquire takes the lock. It succeeds when the lock is free, stale, or already ours.
func (l *WakeLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		err := l.create()
		if err == nil {
			logger.DebugKV(ctx, "Wake lock acquired", "path", l.path)

			return nil
		}

		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create wake lock: %w", err)
		}

		owner, err := l.owner()
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err != nil {
			return err
		}

		if owner == l.pid {
			return nil
		}

		if owner > 0 {
			alive, aliveErr := updater.IsAlive(owner)
			if aliveErr != nil {
				return fmt.Errorf("check wake lock owner: %w", aliveErr)
			}

			if alive {
				return fmt.Errorf("%w: pid %d", ErrHeld, owner)
			}
		}

		logger.InfoKV(ctx, "Replacing stale wake lock", "path", l.path, "owner", owner)

		if err = os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale wake lock: %w", err)
		}
	}

	return fmt.Errorf("%w: lost the race for %s", ErrHeld, l.path)
}

// Held reports whether the lock file exists and names this process.
func (l *WakeLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, err := l.owner()

	return err == nil && owner == l.pid
}

// Release removes the lock file when this process owns it.
func (l *WakeLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, err := l.owner()
	if err != nil || owner != l.pid {
		return nil //nolint:nilerr // Nothing to release.
	}

	if err = os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release wake lock: %w", err)
	}

	logger.DebugKV(ctx, "Wake lock released", "path", l.path)

	return nil
}

// create publishes the lock file with its content in one step: the PID is
// written to a private file first and then hard-linked into place, so no
// reader ever sees an empty lock.
func (l *WakeLock) create() error {
	f, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*")
	if err != nil {
		return err
	}

	tmp := f.Name()

	defer func() {
		_ = os.Remove(tmp)
	}()

	_, err = f.WriteString(strconv.Itoa(l.pid))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return err
	}

	if err = os.Chmod(tmp, lockFilePermissions); err != nil {
		return err
	}

	return os.Link(tmp, l.path)
}

// owner returns the PID stored in the lock file, or zero when the file is
// missing or unreadable garbage.
func (l *WakeLock) owner() (int, error) {
	contents, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, err
		}

		return 0, fmt.Errorf("read wake lock: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil {
		return 0, nil //nolint:nilerr // Garbage content is a stale lock.
	}

	return pid, nil
}
