package update

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestClassify walks the decision table for both strict and legacy modes.
func TestClassify(t *testing.T) {
	t.Parallel()

	aptUpgrade := KnownFrontends()["apt"].Steps[StepUpgrade].Rule
	upToDate := "Reading package lists...\n0 upgraded, 0 newly installed, 0 to remove and 2 not upgraded.\n"
	upgraded := "The following packages will be upgraded:\n  curl\n1 upgraded, 0 newly installed, 0 to remove\n"

	cases := []struct {
		name     string
		rule     Rule
		output   string
		exitCode int
		strict   bool
		want     Outcome
	}{
		{"up to date", aptUpgrade, upToDate, 0, true, NoChange},
		{"upgraded", aptUpgrade, upgraded, 0, true, Changed},
		{"failure strict", aptUpgrade, "E: Could not get lock", 100, true, Failed},
		{"failure legacy counts as changed", aptUpgrade, "E: Could not get lock", 100, false, Changed},
		{"failure legacy with phrase", aptUpgrade, upToDate, 100, false, NoChange},
		{"case insensitive", SnapRefresh().Rule, "all snaps UP TO DATE.", 0, true, NoChange},
		{"exit code wins", FirmwareQuery().Rule, "", FwupdNothingToDo, true, NoChange},
		{"firmware available", FirmwareQuery().Rule, "Devices with updates: UEFI dbx", 0, true, Changed},
		{"autoclean deleted", KnownFrontends()["apt"].Steps[StepAutoclean].Rule, "Del foo 1.0 [12 kB]", 0, true, Changed},
		{"autoclean idle", KnownFrontends()["apt"].Steps[StepAutoclean].Rule, "Reading state information...", 0, true, NoChange},
		{"no rule", Rule{}, "anything", 0, true, Changed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, Classify(tc.rule, tc.output, tc.exitCode, tc.strict))
		})
	}
}

// TestRuleWithPhrases ensures extra phrases do not leak into the original rule.
func TestRuleWithPhrases(t *testing.T) {
	t.Parallel()

	base := SnapRefresh().Rule
	extended := base.WithPhrases("nothing new")

	require.Len(t, base.NoChangePhrases, 1)
	require.Len(t, extended.NoChangePhrases, 2)
	require.Equal(t, NoChange, Classify(extended, "Nothing new here", 0, true))
	require.Equal(t, base, base.WithPhrases())
}

// TestKnownFrontendsCoverEverything checks each frontend defines the whole APT sequence.
func TestKnownFrontendsCoverEverything(t *testing.T) {
	t.Parallel()

	for name, frontend := range KnownFrontends() {
		require.Equal(t, name, frontend.Name)
		require.NotEmpty(t, frontend.InstallArgs)

		for _, step := range PackageSteps() {
			command, ok := frontend.Steps[step]
			require.True(t, ok, "%s misses %s", name, step)
			require.NotEmpty(t, command.Args)
		}
	}
}
