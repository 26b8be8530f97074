package updater

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/go-ps"
)

// FindProcesses returns the PIDs of other processes running the executable.
// Only the base name of executable is compared.
func FindProcesses(executable string) ([]int, error) {
	processList, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	name := ExecutableName(filepath.Base(executable))
	thisProcessID := os.Getpid()

	var pids []int

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != name {
			continue
		}

		pids = append(pids, process.Pid())
	}

	return pids, nil
}

// IsRunning reports whether another process runs the executable.
func IsRunning(executable string) (bool, error) {
	pids, err := FindProcesses(executable)
	if err != nil {
		return false, err
	}

	return len(pids) > 0, nil
}

// IsAlive reports whether a process with the PID exists.
func IsAlive(pid int) (bool, error) {
	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}

	return process != nil, nil
}

// ExecutableName appends ".exe" on Windows when missing.
func ExecutableName(name string) string {
	if getExecutableExtension() != "" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + getExecutableExtension()
	}

	return name
}

// getExecutableExtension returns ".exe" on Windows and "" elsewhere.
func getExecutableExtension() string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return ".exe"
	}

	return ""
}
