//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"os/user"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDetectActor ensures hostname, username and home are detected and non-empty.
func TestDetectActor(t *testing.T) {
	t.Setenv(sudoUserEnv, "")

	a, err := DetectActor()
	require.NoError(t, err)
	require.NotEmpty(t, a.Hostname)
	require.NotEmpty(t, a.Username)
	require.NotEmpty(t, a.HomeDir)

	current, err := user.Current()
	require.NoError(t, err)
	require.Equal(t, current.Username, a.Username)
}

// TestDetectActor_UnknownSudoUser falls back to the current user.
func TestDetectActor_UnknownSudoUser(t *testing.T) {
	t.Setenv(sudoUserEnv, "no-such-user-for-linux-updater")

	a, err := DetectActor()
	require.NoError(t, err)

	current, err := user.Current()
	require.NoError(t, err)
	require.Equal(t, current.Username, a.Username)
}

// TestParseID covers numeric and non-numeric identifiers.
func TestParseID(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1000, parseID("1000"))
	require.Equal(t, -1, parseID("S-1-5-21"))
}
