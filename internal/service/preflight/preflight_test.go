package preflight

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/linux-updater/internal/config"
	"github.com/oshokin/linux-updater/internal/service/common"
)

var errTestDial = errors.New("test dial error")

// memoryRunner is a minimal in-memory Runner implementation for tests.
type memoryRunner struct {
	// installed maps tool names to paths visible through LookPath.
	installed map[string]string
	// provides maps package names to the tool and path they install.
	provides map[string][2]string
	// exitCode is returned from every Run call.
	exitCode int
	// calls records every executed command line.
	calls []string
}

// LookPath resolves a tool from the installed map.
func (m *memoryRunner) LookPath(name string) (string, error) {
	if path, ok := m.installed[name]; ok {
		return path, nil
	}

	return "", exec.ErrNotFound
}

// Run records the call and simulates package installation.
func (m *memoryRunner) Run(_ context.Context, name string, args ...string) (*common.Result, error) {
	m.calls = append(m.calls, strings.Join(append([]string{name}, args...), " "))

	if m.exitCode == 0 && len(args) > 0 {
		if tool, ok := m.provides[args[len(args)-1]]; ok {
			m.installed[tool[0]] = tool[1]
		}
	}

	return &common.Result{ExitCode: m.exitCode}, nil
}

// fakeProcess implements ps.Process.
type fakeProcess struct {
	pid  int
	name string
}

func (p fakeProcess) Pid() int           { return p.pid }
func (p fakeProcess) PPid() int          { return 1 }
func (p fakeProcess) Executable() string { return p.name }

// TestCheckPrivileges checks root and non-root effective IDs.
func TestCheckPrivileges(t *testing.T) {
	t.Parallel()

	c := NewChecker(config.Default(), &memoryRunner{}, WithEUID(func() int { return 0 }))
	require.NoError(t, c.CheckPrivileges())

	c = NewChecker(config.Default(), &memoryRunner{}, WithEUID(func() int { return 1000 }))
	require.ErrorIs(t, c.CheckPrivileges(), ErrNotRoot)
}

// TestResolveToolset_PrefersNala picks nala when both frontends exist.
func TestResolveToolset_PrefersNala(t *testing.T) {
	t.Parallel()

	runner := &memoryRunner{installed: map[string]string{
		"nala":      "/usr/bin/nala",
		"apt":       "/usr/bin/apt",
		"timeshift": "/usr/bin/timeshift",
		"snap":      "/usr/bin/snap",
		"fwupdmgr":  "/usr/bin/fwupdmgr",
	}}

	ts, err := NewChecker(config.Default(), runner).ResolveToolset(context.Background())
	require.NoError(t, err)
	require.Equal(t, "nala", ts.Frontend().Name)
	require.Equal(t, "/usr/bin/nala", ts.Frontend().Path)
	require.False(t, ts.Has(ToolFlatpak))
	require.Equal(t, []string{"fwupdmgr", "snap", "timeshift"}, ts.Tools())
	require.Empty(t, runner.calls)
}

// TestResolveToolset_FallsBackToApt uses apt when nala is absent.
func TestResolveToolset_FallsBackToApt(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.RequiredTools = map[string]string{}

	runner := &memoryRunner{installed: map[string]string{"apt": "/usr/bin/apt"}}

	ts, err := NewChecker(cfg, runner).ResolveToolset(context.Background())
	require.NoError(t, err)
	require.Equal(t, "apt", ts.Frontend().Name)
}

// TestResolveToolset_NoFrontend fails when nothing is installed.
func TestResolveToolset_NoFrontend(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Frontends = []string{"pacman", "apt"}

	_, err := NewChecker(cfg, &memoryRunner{}).ResolveToolset(context.Background())
	require.ErrorIs(t, err, ErrNoFrontend)
}

// TestResolveToolset_InstallsMissingTool installs timeshift through the frontend.
func TestResolveToolset_InstallsMissingTool(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.RequiredTools = map[string]string{"timeshift": "timeshift"}

	runner := &memoryRunner{
		installed: map[string]string{"apt": "/usr/bin/apt"},
		provides:  map[string][2]string{"timeshift": {"timeshift", "/usr/bin/timeshift"}},
	}

	ts, err := NewChecker(cfg, runner).ResolveToolset(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/timeshift", ts.Path(ToolTimeshift))
	require.Equal(t, []string{"/usr/bin/apt install -y timeshift"}, runner.calls)
}

// TestResolveToolset_InstallFailureIsFatal covers a failing install command and a no-op install.
func TestResolveToolset_InstallFailureIsFatal(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.RequiredTools = map[string]string{"fwupdmgr": "fwupd"}

	runner := &memoryRunner{
		installed: map[string]string{"apt": "/usr/bin/apt"},
		exitCode:  100,
	}

	_, err := NewChecker(cfg, runner).ResolveToolset(context.Background())
	require.ErrorIs(t, err, ErrToolInstall)

	// Install "succeeds" but the tool never shows up.
	runner = &memoryRunner{installed: map[string]string{"apt": "/usr/bin/apt"}}

	_, err = NewChecker(cfg, runner).ResolveToolset(context.Background())
	require.ErrorIs(t, err, ErrToolInstall)
}

// TestResolveToolset_DisabledToolNotInstalled leaves tools of skipped steps alone.
func TestResolveToolset_DisabledToolNotInstalled(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.SkipSnap = true
	cfg.SkipFirmware = true
	cfg.RequiredTools = map[string]string{"snap": "snapd", "fwupdmgr": "fwupd"}

	runner := &memoryRunner{
		installed: map[string]string{"apt": "/usr/bin/apt"},
		exitCode:  100,
	}

	ts, err := NewChecker(cfg, runner).ResolveToolset(context.Background())
	require.NoError(t, err)
	require.False(t, ts.Has(ToolSnap))
	require.Empty(t, runner.calls)
}

// TestCheckNetwork covers reachable and unreachable probes.
func TestCheckNetwork(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() {
		_ = listener.Close()
	}()

	cfg := config.Default()
	cfg.ProbeAddress = listener.Addr().String()

	require.NoError(t, NewChecker(cfg, &memoryRunner{}).CheckNetwork(context.Background()))

	failing := WithDialer(func(context.Context, string, string) (net.Conn, error) {
		return nil, errTestDial
	})

	err = NewChecker(cfg, &memoryRunner{}, failing).CheckNetwork(context.Background())
	require.ErrorIs(t, err, ErrNetworkUnreachable)
	require.ErrorIs(t, err, errTestDial)
}

// TestCheckDiskSpace_Boundary verifies the 2 GiB threshold is inclusive.
func TestCheckDiskSpace_Boundary(t *testing.T) {
	t.Parallel()

	free := func(kib uint64) Option {
		return WithFreeSpace(func(context.Context, string) (uint64, error) {
			return kib, nil
		})
	}

	cfg := config.Default()

	got, err := NewChecker(cfg, &memoryRunner{}, free(2_097_152)).CheckDiskSpace(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(2_097_152), got)

	got, err = NewChecker(cfg, &memoryRunner{}, free(2_097_151)).CheckDiskSpace(context.Background())
	require.ErrorIs(t, err, ErrInsufficientSpace)
	require.Equal(t, uint64(2_097_151), got)
}

// TestHasEnoughSpace pins the comparison.
func TestHasEnoughSpace(t *testing.T) {
	t.Parallel()

	require.True(t, HasEnoughSpace(2_097_152, config.DefaultMinFreeKiB))
	require.False(t, HasEnoughSpace(2_097_151, config.DefaultMinFreeKiB))
}

// TestDiskFreeKiB reads the real root filesystem.
func TestDiskFreeKiB(t *testing.T) {
	t.Parallel()

	free, err := diskFreeKiB(context.Background(), RootFilesystem)
	require.NoError(t, err)
	require.Positive(t, free)
}

// TestBusyPackageManagers reports lock holders other than this process.
func TestBusyPackageManagers(t *testing.T) {
	t.Parallel()

	list := WithProcessList(func() ([]ps.Process, error) {
		return []ps.Process{
			fakeProcess{pid: 10, name: "bash"},
			fakeProcess{pid: 11, name: "dpkg"},
			fakeProcess{pid: 12, name: "unattended-upgr"},
			fakeProcess{pid: os.Getpid(), name: "apt"},
		}, nil
	})

	busy, err := NewChecker(config.Default(), &memoryRunner{}, list).BusyPackageManagers()
	require.NoError(t, err)
	require.Equal(t, []string{"dpkg (pid 11)", "unattended-upgr (pid 12)"}, busy)
}
