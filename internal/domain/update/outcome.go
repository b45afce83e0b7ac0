package update

import (
	"slices"
	"time"
)

// Outcome is the classified result of a single step.
type Outcome int

const (
	// Changed means the step modified the system.
	Changed Outcome = iota
	// NoChange means the tool reported nothing to do.
	NoChange
	// Failed means the tool could not complete.
	Failed
	// Skipped means the step did not run.
	Skipped
)

// String renders the outcome for logs and the summary.
func (o Outcome) String() string {
	switch o {
	case Changed:
		return "changed"
	case NoChange:
		return "no change"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// StepName identifies a step of the run.
type StepName string

// Steps of a run, in execution order.
const (
	StepBackup          StepName = "backup"
	StepPackageRefresh  StepName = "package-refresh"
	StepUpgrade         StepName = "upgrade"
	StepFullUpgrade     StepName = "full-upgrade"
	StepAutoremove      StepName = "autoremove"
	StepAutoclean       StepName = "autoclean"
	StepSnapRefresh     StepName = "snap-refresh"
	StepFlatpakUpdate   StepName = "flatpak-update"
	StepFirmwareRefresh StepName = "firmware-refresh"
	StepFirmwareUpdate  StepName = "firmware-update"
)

// PackageSteps returns the APT sequence in the order it runs.
func PackageSteps() []StepName {
	return []StepName{
		StepPackageRefresh,
		StepUpgrade,
		StepFullUpgrade,
		StepAutoremove,
		StepAutoclean,
	}
}

// StepResult captures what happened to one step.
type StepResult struct {
	// Step names the step.
	Step StepName
	// Outcome is the classified result.
	Outcome Outcome
	// ExitCode is the subprocess exit status, -1 if it never ran.
	ExitCode int
	// Duration is how long the step took.
	Duration time.Duration
	// Note explains skips and failures.
	Note string
}

// Report collects step results in execution order.
type Report struct {
	// StartedAt is when the run began.
	StartedAt time.Time
	// Preflight holds the gates passed so far.
	Preflight PreflightResult
	// Results holds one entry per step that was considered.
	Results []StepResult
}

// Add appends a result.
func (r *Report) Add(result StepResult) {
	r.Results = append(r.Results, result)
}

// Count returns how many steps ended with the given outcome.
func (r *Report) Count(outcome Outcome) int {
	count := 0

	for _, result := range r.Results {
		if result.Outcome == outcome {
			count++
		}
	}

	return count
}

// Lookup returns the result recorded for a step.
func (r *Report) Lookup(step StepName) (StepResult, bool) {
	idx := slices.IndexFunc(r.Results, func(result StepResult) bool {
		return result.Step == step
	})
	if idx < 0 {
		return StepResult{}, false
	}

	return r.Results[idx], true
}

// PreflightResult holds the gates evaluated before anything is changed.
type PreflightResult struct {
	// RootOK is true when running with elevated privileges.
	RootOK bool
	// DependenciesOK is true when every required tool is present.
	DependenciesOK bool
	// NetworkOK is true when the probe host was reachable.
	NetworkOK bool
	// DiskOK is true when free space meets the minimum.
	DiskOK bool
	// FreeKiB is the free space observed on the root filesystem.
	FreeKiB uint64
}

// Passed reports whether every gate is open.
func (p PreflightResult) Passed() bool {
	return p.RootOK && p.DependenciesOK && p.NetworkOK && p.DiskOK
}
