package restart

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/oshokin/panic-button/internal/bus"
	"github.com/oshokin/panic-button/internal/logger"
	"github.com/oshokin/panic-button/internal/service/common"
	"github.com/oshokin/panic-button/internal/service/updater"
)

// ProcessLauncher starts the dispatcher binary as a child process.
type ProcessLauncher struct {
	// executable is the dispatcher binary name or path.
	executable string
	// args are passed to the dispatcher.
	args []string
	// staged is an optional replacement binary applied before a start.
	staged string
	// publisher delivers the start event to a running dispatcher.
	publisher bus.Publisher
	// exits receives the wait result of every child.
	exits chan error

	mu    sync.Mutex
	child *exec.Cmd
}

// NewProcessLauncher creates a launcher for executable.
func NewProcessLauncher(executable string, args []string, staged string, publisher bus.Publisher) *ProcessLauncher {
	return &ProcessLauncher{
		executable: executable,
		args:       args,
		staged:     staged,
		publisher:  publisher,
		exits:      make(chan error, 1),
	}
}

// Exited receives the wait error of every child that ended.
func (l *ProcessLauncher) Exited() <-chan error {
	return l.exits
}

// Launch resumes a running dispatcher with a start event, or applies any
// staged update and starts a new one.
func (l *ProcessLauncher) Launch(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	running := l.child != nil
	if !running {
		var err error

		running, err = updater.IsRunning(l.executable)
		if err != nil {
			logger.WarnKV(ctx, "Failed to list processes", "error", err)
		}
	}

	if running {
		return Resume(ctx, l.publisher)
	}

	path, err := exec.LookPath(l.executable)
	if err != nil {
		return fmt.Errorf("find dispatcher executable: %w", err)
	}

	applied, err := updater.ApplyStaged(ctx, path, l.staged)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to apply staged update, starting current binary", "error", err)
	} else if applied {
		logger.InfoKV(ctx, "Staged update applied", "executable", path)
	}

	cmd := exec.Command(path, l.args...) //nolint:gosec // The executable comes from the operator's settings.
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err = cmd.Start(); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}

	l.child = cmd

	logger.InfoKV(ctx, "Dispatcher started", "executable", path, "pid", cmd.Process.Pid)

	go l.wait(cmd)

	return nil
}

// PID returns the process ID of the running child, or zero when there is none.
func (l *ProcessLauncher) PID() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.child == nil {
		return 0
	}

	return l.child.Process.Pid
}

func (l *ProcessLauncher) wait(cmd *exec.Cmd) {
	err := cmd.Wait()

	l.mu.Lock()
	if l.child == cmd {
		l.child = nil
	}
	l.mu.Unlock()

	select {
	case l.exits <- err:
	default:
	}
}

// Resume delivers the start event to a running dispatcher.
func Resume(ctx context.Context, publisher bus.Publisher) error {
	if err := publisher.Publish(bus.SubjectDispatcherStart, nil); err != nil {
		return fmt.Errorf("publish start event: %w", err)
	}

	logger.Debug(ctx, "Start event sent to running dispatcher")

	return nil
}

// Announce emits the restart signal carrying the PID of this process; the
// dispatcher calls it on teardown while it is still alive, so the watchdog
// waits for that PID to exit before it relaunches.
func Announce(ctx context.Context, publisher bus.Publisher) error {
	return announce(ctx, publisher, os.Getpid())
}

// AnnouncedPID returns the PID carried by a restart signal, or zero when the
// signal names no process.
func AnnouncedPID(data []byte) int {
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid < 0 {
		return 0
	}

	return pid
}

// announce publishes the restart signal and waits until the bus delivered it.
// A zero pid asks for an immediate relaunch.
func announce(ctx context.Context, publisher bus.Publisher, pid int) error {
	var payload []byte
	if pid > 0 {
		payload = []byte(strconv.Itoa(pid))
	}

	if err := publisher.Publish(bus.SubjectDispatcherRestart, payload); err != nil {
		return fmt.Errorf("publish restart signal: %w", err)
	}

	if err := bus.Flush(ctx, publisher); err != nil {
		return fmt.Errorf("deliver restart signal: %w", err)
	}

	actor := "unknown"
	if current, err := common.DetectActor(); err == nil {
		actor = current.String()
	}

	logger.InfoKV(ctx, "Restart signal emitted", "pid", pid, "actor", actor)

	return nil
}
