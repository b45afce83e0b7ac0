package update

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestOutcomeString covers every outcome label.
func TestOutcomeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "changed", Changed.String())
	require.Equal(t, "no change", NoChange.String())
	require.Equal(t, "failed", Failed.String())
	require.Equal(t, "skipped", Skipped.String())
	require.Equal(t, "unknown", Outcome(42).String())
}

// TestReport verifies counting and lookup over recorded results.
func TestReport(t *testing.T) {
	t.Parallel()

	report := Report{StartedAt: time.Now()}
	report.Add(StepResult{Step: StepPackageRefresh, Outcome: Changed})
	report.Add(StepResult{Step: StepUpgrade, Outcome: NoChange})
	report.Add(StepResult{Step: StepFlatpakUpdate, Outcome: Skipped, Note: "flatpak not installed"})
	report.Add(StepResult{Step: StepSnapRefresh, Outcome: NoChange})

	require.Equal(t, 1, report.Count(Changed))
	require.Equal(t, 2, report.Count(NoChange))
	require.Equal(t, 0, report.Count(Failed))

	got, ok := report.Lookup(StepFlatpakUpdate)
	require.True(t, ok)
	require.Equal(t, Skipped, got.Outcome)

	_, ok = report.Lookup(StepFirmwareUpdate)
	require.False(t, ok)
}

// TestPreflightResultPassed requires every gate.
func TestPreflightResultPassed(t *testing.T) {
	t.Parallel()

	p := PreflightResult{RootOK: true, DependenciesOK: true, NetworkOK: true, DiskOK: true}
	require.True(t, p.Passed())

	p.DiskOK = false
	require.False(t, p.Passed())
}

// TestPackageStepsOrder pins the APT sequence.
func TestPackageStepsOrder(t *testing.T) {
	t.Parallel()

	require.Equal(t, []StepName{
		StepPackageRefresh, StepUpgrade, StepFullUpgrade, StepAutoremove, StepAutoclean,
	}, PackageSteps())
}
