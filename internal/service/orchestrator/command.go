package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/oshokin/linux-updater/internal/config"
	"github.com/oshokin/linux-updater/internal/domain/update"
	"github.com/oshokin/linux-updater/internal/logger"
	"github.com/oshokin/linux-updater/internal/repository/state"
	"github.com/oshokin/linux-updater/internal/service/common"
	"github.com/oshokin/linux-updater/internal/service/power"
	"github.com/oshokin/linux-updater/internal/service/preflight"
	"github.com/oshokin/linux-updater/internal/version"
)

// ErrInterrupted is returned when a signal cancels the run.
var ErrInterrupted = errors.New("update interrupted")

// Options are inputs accepted by the orchestrator entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// DryRun logs mutating commands instead of executing them.
	DryRun bool
	// SkipBackup disables the snapshot in addition to the settings file.
	SkipBackup bool
	// SkipSnap disables the snap refresh in addition to the settings file.
	SkipSnap bool
	// SkipFlatpak disables the flatpak update in addition to the settings file.
	SkipFlatpak bool
	// SkipFirmware disables firmware steps in addition to the settings file.
	SkipFirmware bool
	// Console receives console log entries; stdout when nil.
	Console zapcore.WriteSyncer
	// Stream receives live command output; discarded when nil.
	Stream io.Writer
	// Runner executes tools; a locale-neutral ExecRunner when nil.
	Runner common.Runner
	// Preflight overrides system probes, mostly for tests.
	Preflight []preflight.Option
	// HomeDir replaces the invoking user's home when resolving the log directory.
	HomeDir string
	// RebootFlagFile replaces power.DefaultRebootRequiredFile.
	RebootFlagFile string
	// Now replaces time.Now when naming the log file.
	Now func() time.Time
}

// runner holds the state of a single update execution.
// It is intentionally unexported, call Run(ctx, Options) from callers.
type runner struct {
	cfg     *config.Config     // Settings with command-line overrides applied.
	opts    *Options           // Caller options.
	actor   *common.Actor      // User who invoked the run.
	exec    common.Runner      // Executes external tools.
	checker *preflight.Checker // Evaluates the preflight gates.
	lock    state.Repository   // Single-instance lock next to the logs.
	locked  bool               // Whether this run holds the lock.
	toolset *preflight.Toolset // Chosen once by resolveTools, read-only afterwards.
	report  *update.Report     // Outcomes and preflight gates recorded so far.
	stages  []stage            // Fixed sequence executed by run.
}

// stage is one entry of the fixed run sequence.
type stage struct {
	name string
	fn   func(ctx context.Context) error
}

// Run executes a full update and is the public entry point for the CLI.
// The returned report is never nil once the log session is open.
func Run(ctx context.Context, opts *Options) (*update.Report, error) {
	if opts == nil {
		opts = new(Options)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	applyOverrides(cfg, opts)

	actor, err := common.DetectActor()
	if err != nil {
		return nil, fmt.Errorf("detect invoking user: %w", err)
	}

	home := opts.HomeDir
	if home == "" {
		home = actor.HomeDir
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	startedAt := now()

	logDir := cfg.ResolveLogDirectory(home)

	session, err := logger.OpenSession(logDir, startedAt, opts.Console)
	if err != nil {
		return nil, fmt.Errorf("open log session: %w", err)
	}

	defer func() {
		_ = session.Close()
	}()

	ctx = logger.ToContext(ctx, session.Logger())
	ctx = logger.WithName(ctx, "linux-updater")

	if err = session.Chown(actor.UID, actor.GID); err != nil {
		logger.WarnKV(ctx, "Unable to hand the log to the invoking user", "error", err)
	}

	logger.InfoKV(ctx, "Update started",
		"version", version.Short(),
		"log", session.Path(),
		"user", actor.Username,
		"dry_run", opts.DryRun)

	u := newRunner(cfg, opts, actor, logDir, startedAt)

	defer u.releaseLock(ctx)

	err = u.run(ctx)
	if err == nil {
		// The last stages may finish without noticing a late signal.
		err = ctx.Err()
	}

	if err != nil {
		if ctx.Err() != nil {
			logger.Error(ctx, "Update interrupted")
			return u.report, ErrInterrupted
		}

		logger.ErrorKV(ctx, "Update aborted",
			append([]any{"error", err}, preflightFields(u.report.Preflight)...)...)

		return u.report, err
	}

	logger.Info(ctx, "System update completed successfully")

	return u.report, nil
}

// newRunner wires the runner with real or overridden collaborators.
func newRunner(cfg *config.Config, opts *Options, actor *common.Actor, logDir string, startedAt time.Time) *runner {
	execRunner := opts.Runner
	if execRunner == nil {
		runnerOptions := []common.Option{common.WithCommandTimeout(cfg.CommandTimeout)}
		if opts.Stream != nil {
			runnerOptions = append(runnerOptions, common.WithStream(opts.Stream))
		}

		execRunner = common.NewExecRunner(runnerOptions...)
	}

	if opts.RebootFlagFile == "" {
		opts.RebootFlagFile = power.DefaultRebootRequiredFile
	}

	u := &runner{
		cfg:     cfg,
		opts:    opts,
		actor:   actor,
		exec:    execRunner,
		checker: preflight.NewChecker(cfg, execRunner, opts.Preflight...),
		lock:    state.NewFileRepository(filepath.Join(logDir, state.DefaultFileName)),
		report:  &update.Report{StartedAt: startedAt},
	}

	u.stages = []stage{
		{"privileges", u.checkPrivileges},
		{"lock", u.acquireLock},
		{"tools", u.resolveTools},
		{"backup", u.backup},
		{"network", u.checkNetwork},
		{"disk space", u.checkDiskSpace},
		{"packages", u.updatePackages},
		{"snap", u.refreshSnaps},
		{"flatpak", u.updateFlatpaks},
		{"firmware", u.updateFirmware},
		{"reboot", u.checkReboot},
	}

	return u
}

// run executes every stage in order and stops at the first fatal error.
func (u *runner) run(ctx context.Context) error {
	for _, s := range u.stages {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}

	u.logSummary(ctx)

	return nil
}

// checkPrivileges is the first gate.
func (u *runner) checkPrivileges(_ context.Context) error {
	if err := u.checker.CheckPrivileges(); err != nil {
		return err
	}

	u.report.Preflight.RootOK = true

	return nil
}

// resolveTools builds the toolset every later stage uses.
func (u *runner) resolveTools(ctx context.Context) error {
	toolset, err := u.checker.ResolveToolset(ctx)
	if err != nil {
		return err
	}

	u.toolset = toolset
	u.report.Preflight.DependenciesOK = true

	logger.DebugKV(ctx, "Resolved tools", "tools", toolset.Tools())

	return nil
}

// checkNetwork probes connectivity once.
func (u *runner) checkNetwork(ctx context.Context) error {
	if err := u.checker.CheckNetwork(ctx); err != nil {
		return err
	}

	u.report.Preflight.NetworkOK = true

	return nil
}

// checkDiskSpace enforces the free space minimum on the root filesystem.
func (u *runner) checkDiskSpace(ctx context.Context) error {
	freeKiB, err := u.checker.CheckDiskSpace(ctx)
	u.report.Preflight.FreeKiB = freeKiB

	if err != nil {
		return err
	}

	u.report.Preflight.DiskOK = true

	return nil
}

// preflightFields renders the gates as log fields.
func preflightFields(p update.PreflightResult) []any {
	return []any{
		"root_ok", p.RootOK,
		"dependencies_ok", p.DependenciesOK,
		"network_ok", p.NetworkOK,
		"disk_ok", p.DiskOK,
		"free_kib", p.FreeKiB,
	}
}

// applyOverrides folds command-line switches into the loaded settings.
func applyOverrides(cfg *config.Config, opts *Options) {
	cfg.SkipBackup = cfg.SkipBackup || opts.SkipBackup
	cfg.SkipSnap = cfg.SkipSnap || opts.SkipSnap
	cfg.SkipFlatpak = cfg.SkipFlatpak || opts.SkipFlatpak
	cfg.SkipFirmware = cfg.SkipFirmware || opts.SkipFirmware
}
