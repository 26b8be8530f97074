//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"
)

// Actor identifies the host and account a process runs as.
type Actor struct {
	// Hostname of the machine.
	Hostname string
	// Username of the account.
	Username string
	// PID of the process.
	PID int
}

// DetectActor gathers host, user and process information for log fields and signals.
func DetectActor() (Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Actor{}, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return Actor{}, fmt.Errorf("current user: %w", err)
	}

	return Actor{
		Hostname: hostname,
		Username: currentUser.Username,
		PID:      os.Getpid(),
	}, nil
}

// String renders the actor as user@host[pid].
func (a Actor) String() string {
	return fmt.Sprintf("%s@%s[%d]", a.Username, a.Hostname, a.PID)
}
