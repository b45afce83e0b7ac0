package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oshokin/linux-updater/internal/domain/update"
	"github.com/oshokin/linux-updater/internal/logger"
	"github.com/oshokin/linux-updater/internal/service/power"
	"github.com/oshokin/linux-updater/internal/service/preflight"
)

// ErrBackupFailed is returned when the snapshot fails and backups are mandatory.
var ErrBackupFailed = errors.New("pre-update snapshot failed")

// backup takes a snapshot before anything is changed.
func (u *runner) backup(ctx context.Context) error {
	if u.cfg.SkipBackup {
		u.skip(ctx, update.StepBackup, "disabled in settings")
		return nil
	}

	if !u.toolset.Has(preflight.ToolTimeshift) {
		u.skip(ctx, update.StepBackup, "timeshift is not installed")
		return nil
	}

	result, err := u.runStep(ctx, update.StepBackup,
		u.toolset.Path(preflight.ToolTimeshift), update.BackupCreate(u.cfg.BackupComment))
	if err != nil {
		return err
	}

	if result.Outcome != update.Failed {
		return nil
	}

	if u.cfg.BackupRequired {
		return ErrBackupFailed
	}

	logger.Warn(ctx, "Continuing without a snapshot, set backup_required to make this fatal")

	return nil
}

// updatePackages runs the APT sequence through the chosen frontend.
func (u *runner) updatePackages(ctx context.Context) error {
	if busy, err := u.checker.BusyPackageManagers(); err != nil {
		logger.DebugKV(ctx, "Unable to inspect running processes", "error", err)
	} else if len(busy) > 0 {
		logger.WarnKV(ctx, "Another package manager is running, steps may wait for its lock",
			"processes", busy)
	}

	frontend := u.toolset.Frontend()

	for _, step := range update.PackageSteps() {
		if step == update.StepAutoclean && !u.cfg.AlwaysAutoclean {
			removed, _ := u.report.Lookup(update.StepAutoremove)
			if removed.Outcome != update.Changed {
				u.skip(ctx, step, "autoremove removed nothing")
				continue
			}
		}

		if _, err := u.runStep(ctx, step, frontend.Path, frontend.Steps[step]); err != nil {
			return err
		}
	}

	return nil
}

// refreshSnaps refreshes installed snaps.
func (u *runner) refreshSnaps(ctx context.Context) error {
	return u.runOptionalTool(ctx, update.StepSnapRefresh, preflight.ToolSnap, u.cfg.SkipSnap, update.SnapRefresh())
}

// updateFlatpaks updates installed flatpaks. A missing flatpak is a skip, not an error.
func (u *runner) updateFlatpaks(ctx context.Context) error {
	return u.runOptionalTool(ctx, update.StepFlatpakUpdate, preflight.ToolFlatpak, u.cfg.SkipFlatpak, update.FlatpakUpdate())
}

// updateFirmware refreshes metadata and applies firmware only when something is pending.
func (u *runner) updateFirmware(ctx context.Context) error {
	if u.cfg.SkipFirmware {
		u.skip(ctx, update.StepFirmwareRefresh, "disabled in settings")
		u.skip(ctx, update.StepFirmwareUpdate, "disabled in settings")

		return nil
	}

	path := u.toolset.Path(preflight.ToolFwupdmgr)
	if path == "" {
		u.skip(ctx, update.StepFirmwareRefresh, "fwupdmgr is not installed")
		u.skip(ctx, update.StepFirmwareUpdate, "fwupdmgr is not installed")

		return nil
	}

	if _, err := u.runStep(ctx, update.StepFirmwareRefresh, path, update.FirmwareRefresh()); err != nil {
		return err
	}

	pending, err := u.execute(ctx, update.StepFirmwareUpdate, path, update.FirmwareQuery())
	if err != nil {
		return err
	}

	switch pending.Outcome {
	case update.NoChange:
		pending.Note = "no firmware updates available"
		u.record(ctx, pending)

		return nil
	case update.Failed:
		pending.Note = "could not query firmware updates"
		u.record(ctx, pending)

		return nil
	case update.Skipped:
		u.record(ctx, pending)

		return nil
	case update.Changed:
	}

	logger.Info(ctx, "Firmware updates are available, applying")

	_, err = u.runStep(ctx, update.StepFirmwareUpdate, path, update.FirmwareApply())

	return err
}

// checkReboot warns about and optionally schedules a pending reboot.
func (u *runner) checkReboot(ctx context.Context) error {
	required, packages, err := power.RebootRequired(u.opts.RebootFlagFile)
	if err != nil {
		logger.WarnKV(ctx, "Unable to check whether a reboot is required", "error", err)
	}

	if !required {
		return nil
	}

	logger.WarnKV(ctx, "A reboot is required to finish the update", "packages", packages)

	if !u.cfg.RebootIfRequired || u.opts.DryRun {
		return nil
	}

	if err = power.ScheduleReboot(ctx, u.exec); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.WarnKV(ctx, "Unable to schedule a reboot", "error", err)

		return nil
	}

	logger.Info(ctx, "Reboot scheduled in one minute")

	return nil
}

// runOptionalTool runs a tool that may be disabled or absent.
func (u *runner) runOptionalTool(
	ctx context.Context,
	step update.StepName,
	tool string,
	disabled bool,
	command update.Command,
) error {
	if disabled {
		u.skip(ctx, step, "disabled in settings")
		return nil
	}

	if !u.toolset.Has(tool) {
		u.skip(ctx, step, tool+" is not installed")
		return nil
	}

	_, err := u.runStep(ctx, step, u.toolset.Path(tool), command)

	return err
}

// runStep executes a command, then records and logs its outcome.
// Only cancellation is returned as an error. A failed step is an outcome.
func (u *runner) runStep(
	ctx context.Context,
	step update.StepName,
	path string,
	command update.Command,
) (update.StepResult, error) {
	result, err := u.execute(ctx, step, path, command)
	if err != nil {
		return result, err
	}

	u.record(ctx, result)

	return result, nil
}

// execute runs a command and classifies it without recording anything.
func (u *runner) execute(
	ctx context.Context,
	step update.StepName,
	path string,
	command update.Command,
) (update.StepResult, error) {
	stepCtx := logger.WithKV(ctx, "step", string(step))
	commandLine := strings.Join(append([]string{path}, command.Args...), " ")

	if u.opts.DryRun && !command.ReadOnly {
		logger.InfoKV(stepCtx, "Dry run, not executing", "command", commandLine)

		return update.StepResult{
			Step:     step,
			Outcome:  update.Skipped,
			ExitCode: -1,
			Note:     "dry run",
		}, nil
	}

	logger.InfoKV(stepCtx, "Running", "command", commandLine)

	started := time.Now()
	res, err := u.exec.Run(ctx, path, command.Args...)

	result := update.StepResult{
		Step:     step,
		ExitCode: -1,
		Duration: time.Since(started),
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		result.Outcome = update.Failed
		result.Note = err.Error()

		return result, nil
	}

	logger.DebugKV(stepCtx, "Command output", "output", res.Output)

	rule := command.Rule.WithPhrases(u.cfg.NoChangePhrases[string(step)]...)
	strict := u.cfg.StrictExitCodes || command.Strict

	result.ExitCode = res.ExitCode
	result.Duration = res.Duration
	result.Outcome = update.Classify(rule, res.Output, res.ExitCode, strict)

	return result, nil
}

// skip records a step that did not run.
func (u *runner) skip(ctx context.Context, step update.StepName, note string) {
	u.record(ctx, update.StepResult{
		Step:     step,
		Outcome:  update.Skipped,
		ExitCode: -1,
		Note:     note,
	})
}

// record adds the result to the report and logs it.
func (u *runner) record(ctx context.Context, result update.StepResult) {
	u.report.Add(result)

	stepCtx := logger.WithKV(ctx, "step", string(result.Step))

	switch result.Outcome {
	case update.Changed:
		logger.InfoKV(stepCtx, "Changes applied", "duration", result.Duration.Round(time.Millisecond).String())
	case update.NoChange:
		logger.InfoKV(stepCtx, "Nothing to do", "note", result.Note)
	case update.Failed:
		logger.WarnKV(stepCtx, "Step failed, continuing", "exit_code", result.ExitCode, "note", result.Note)
	case update.Skipped:
		logger.InfoKV(stepCtx, "Skipped", "reason", result.Note)
	}
}

// logSummary writes one line per step to the log.
func (u *runner) logSummary(ctx context.Context) {
	logger.InfoKV(ctx, "Preflight",
		append([]any{"passed", u.report.Preflight.Passed()}, preflightFields(u.report.Preflight)...)...)

	for _, result := range u.report.Results {
		logger.InfoKV(ctx, "Summary", "step", string(result.Step), "outcome", result.Outcome.String())
	}

	logger.InfoKV(ctx, "Totals",
		"changed", u.report.Count(update.Changed),
		"no_change", u.report.Count(update.NoChange),
		"failed", u.report.Count(update.Failed),
		"skipped", u.report.Count(update.Skipped))
}
