//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// sudoUserEnv names the variable sudo sets to the original user.
const sudoUserEnv = "SUDO_USER"

// Actor is the user on whose behalf the update runs.
type Actor struct {
	// Hostname is the machine name.
	Hostname string
	// Username is the invoking user, not root when run through sudo.
	Username string
	// HomeDir is the invoking user's home directory.
	HomeDir string
	// UID is the invoking user's numeric ID, -1 if unknown.
	UID int
	// GID is the invoking user's primary group ID, -1 if unknown.
	GID int
}

// DetectActor resolves the invoking user, looking through sudo when possible.
func DetectActor() (*Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	invoking, err := invokingUser()
	if err != nil {
		return nil, err
	}

	return &Actor{
		Hostname: hostname,
		Username: invoking.Username,
		HomeDir:  invoking.HomeDir,
		UID:      parseID(invoking.Uid),
		GID:      parseID(invoking.Gid),
	}, nil
}

// invokingUser prefers the sudo caller and falls back to the current user.
func invokingUser() (*user.User, error) {
	if name := os.Getenv(sudoUserEnv); name != "" && name != "root" {
		if u, err := user.Lookup(name); err == nil {
			return u, nil
		}
	}

	current, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return current, nil
}

// parseID converts a numeric user or group ID, returning -1 when it is not numeric.
func parseID(s string) int {
	id, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}

	return id
}
