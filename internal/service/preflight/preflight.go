package preflight

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-ps"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/oshokin/linux-updater/internal/config"
	"github.com/oshokin/linux-updater/internal/domain/update"
	"github.com/oshokin/linux-updater/internal/logger"
	"github.com/oshokin/linux-updater/internal/service/common"
)

// RootFilesystem is the mount point whose free space is checked.
const RootFilesystem = "/"

// kibibyte converts bytes to KiB.
const kibibyte = 1024

var (
	// ErrNotRoot is returned when the process lacks elevated privileges.
	ErrNotRoot = errors.New("this program must be run as root")
	// ErrNoFrontend is returned when no supported APT frontend is installed.
	ErrNoFrontend = errors.New("no supported package frontend found")
	// ErrToolInstall is returned when a required tool is missing and cannot be installed.
	ErrToolInstall = errors.New("required tool could not be installed")
	// ErrNetworkUnreachable is returned when the probe host cannot be reached.
	ErrNetworkUnreachable = errors.New("network is unreachable")
	// ErrInsufficientSpace is returned when the root filesystem is too full.
	ErrInsufficientSpace = errors.New("insufficient free disk space")
)

// DialFunc opens a network connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// FreeSpaceFunc reports free space in KiB for a mount point.
type FreeSpaceFunc func(ctx context.Context, path string) (uint64, error)

// ProcessListFunc returns the running processes.
type ProcessListFunc func() ([]ps.Process, error)

// Checker evaluates preflight gates.
type Checker struct {
	// cfg carries thresholds and tool requirements.
	cfg *config.Config
	// runner resolves and installs tools.
	runner common.Runner
	// euid reports the effective user ID.
	euid func() int
	// dial is used for the connectivity probe.
	dial DialFunc
	// freeSpace measures the root filesystem.
	freeSpace FreeSpaceFunc
	// processes lists running processes for the busy check.
	processes ProcessListFunc
}

// Option configures a Checker.
type Option func(*Checker)

// WithEUID overrides the effective user ID source.
func WithEUID(euid func() int) Option {
	return func(c *Checker) {
		c.euid = euid
	}
}

// WithDialer overrides how the probe connection is opened.
func WithDialer(dial DialFunc) Option {
	return func(c *Checker) {
		c.dial = dial
	}
}

// WithFreeSpace overrides how free space is measured.
func WithFreeSpace(freeSpace FreeSpaceFunc) Option {
	return func(c *Checker) {
		c.freeSpace = freeSpace
	}
}

// WithProcessList overrides how running processes are listed.
func WithProcessList(processes ProcessListFunc) Option {
	return func(c *Checker) {
		c.processes = processes
	}
}

// NewChecker creates a Checker backed by the real system.
func NewChecker(cfg *config.Config, runner common.Runner, opts ...Option) *Checker {
	var dialer net.Dialer

	c := &Checker{
		cfg:       cfg,
		runner:    runner,
		euid:      os.Geteuid,
		dial:      dialer.DialContext,
		freeSpace: diskFreeKiB,
		processes: ps.Processes,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CheckPrivileges fails unless the effective user is root.
func (c *Checker) CheckPrivileges() error {
	if euid := c.euid(); euid != 0 {
		return fmt.Errorf("effective uid %d: %w", euid, ErrNotRoot)
	}

	return nil
}

// ResolveToolset picks the frontend and makes sure required tools exist,
// installing any that are missing through the chosen frontend.
func (c *Checker) ResolveToolset(ctx context.Context) (*Toolset, error) {
	frontend, err := c.resolveFrontend(ctx)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]string, len(c.cfg.RequiredTools)+len(optionalTools()))

	for _, tool := range optionalTools() {
		if path, lookErr := c.runner.LookPath(tool); lookErr == nil {
			paths[tool] = path
		}
	}

	disabled := c.disabledTools()

	for _, tool := range slices.Sorted(maps.Keys(c.cfg.RequiredTools)) {
		if path, lookErr := c.runner.LookPath(tool); lookErr == nil {
			paths[tool] = path
			continue
		}

		if disabled[tool] {
			logger.DebugKV(ctx, "Required tool missing but its step is disabled", "tool", tool)
			continue
		}

		path, installErr := c.install(ctx, frontend, tool, c.cfg.RequiredTools[tool])
		if installErr != nil {
			return nil, installErr
		}

		paths[tool] = path
	}

	return NewToolset(frontend, paths), nil
}

// disabledTools lists tools whose only step is switched off.
func (c *Checker) disabledTools() map[string]bool {
	return map[string]bool{
		ToolTimeshift: c.cfg.SkipBackup,
		ToolSnap:      c.cfg.SkipSnap,
		ToolFlatpak:   c.cfg.SkipFlatpak,
		ToolFwupdmgr:  c.cfg.SkipFirmware,
	}
}

// resolveFrontend returns the first configured frontend found on PATH.
func (c *Checker) resolveFrontend(ctx context.Context) (update.Frontend, error) {
	known := update.KnownFrontends()

	for _, name := range c.cfg.Frontends {
		frontend, ok := known[name]
		if !ok {
			logger.WarnKV(ctx, "Unknown package frontend in configuration", "frontend", name)
			continue
		}

		path, err := c.runner.LookPath(name)
		if err != nil {
			logger.DebugKV(ctx, "Package frontend not installed", "frontend", name)
			continue
		}

		logger.InfoKV(ctx, "Using package frontend", "frontend", name, "path", path)

		return frontend.Resolved(path), nil
	}

	return update.Frontend{}, fmt.Errorf("tried %s: %w", strings.Join(c.cfg.Frontends, ", "), ErrNoFrontend)
}

// install adds the package providing tool and confirms the tool appeared.
func (c *Checker) install(ctx context.Context, frontend update.Frontend, tool, pkg string) (string, error) {
	logger.WarnKV(ctx, "Required tool missing, installing", "tool", tool, "package", pkg)

	args := append(slices.Clone(frontend.InstallArgs), pkg)

	result, err := c.runner.Run(ctx, frontend.Path, args...)
	if err != nil {
		return "", fmt.Errorf("install %s: %w: %w", pkg, ErrToolInstall, err)
	}

	logger.DebugKV(ctx, "Install output", "package", pkg, "output", result.Output)

	if result.ExitCode != 0 {
		return "", fmt.Errorf("install %s exited with %d: %w", pkg, result.ExitCode, ErrToolInstall)
	}

	path, err := c.runner.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("%s still missing after installing %s: %w", tool, pkg, ErrToolInstall)
	}

	logger.InfoKV(ctx, "Installed required tool", "tool", tool, "path", path)

	return path, nil
}

// CheckNetwork dials the probe address once.
func (c *Checker) CheckNetwork(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	conn, err := c.dial(probeCtx, "tcp", c.cfg.ProbeAddress)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("probe %s: %w: %w", c.cfg.ProbeAddress, ErrNetworkUnreachable, err)
	}

	_ = conn.Close()

	logger.InfoKV(ctx, "Network is reachable", "probe", c.cfg.ProbeAddress)

	return nil
}

// CheckDiskSpace measures the root filesystem and returns the free KiB.
func (c *Checker) CheckDiskSpace(ctx context.Context) (uint64, error) {
	freeKiB, err := c.freeSpace(ctx, RootFilesystem)
	if err != nil {
		return 0, fmt.Errorf("measure free space on %s: %w", RootFilesystem, err)
	}

	if !HasEnoughSpace(freeKiB, c.cfg.MinFreeKiB) {
		return freeKiB, fmt.Errorf("%s free on %s, need %s: %w",
			humanize.IBytes(freeKiB*kibibyte),
			RootFilesystem,
			humanize.IBytes(c.cfg.MinFreeKiB*kibibyte),
			ErrInsufficientSpace)
	}

	logger.InfoKV(ctx, "Disk space is sufficient",
		"free", humanize.IBytes(freeKiB*kibibyte), "free_kib", freeKiB)

	return freeKiB, nil
}

// HasEnoughSpace reports whether free meets the minimum. Both are in KiB.
func HasEnoughSpace(freeKiB, minKiB uint64) bool {
	return freeKiB >= minKiB
}

// BusyPackageManagers lists running processes that hold package locks.
func (c *Checker) BusyPackageManagers() ([]string, error) {
	processList, err := c.processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	lockHolders := map[string]struct{}{
		"apt":             {},
		"apt-get":         {},
		"dpkg":            {},
		"nala":            {},
		"unattended-upgr": {},
	}

	thisProcessID := os.Getpid()

	var busy []string

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if _, found := lockHolders[process.Executable()]; found {
			busy = append(busy, fmt.Sprintf("%s (pid %d)", process.Executable(), process.Pid()))
		}
	}

	return busy, nil
}

// diskFreeKiB reads free space for unprivileged users, the same figure df reports as available.
func diskFreeKiB(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}

	return usage.Free / kibibyte, nil
}
