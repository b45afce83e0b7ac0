package update

// Command is an argument vector plus the rule used to classify its output.
type Command struct {
	// Args are passed after the executable name.
	Args []string
	// Rule classifies the result.
	Rule Rule
	// Strict classifies non-zero exits as failures whatever the run settings say.
	Strict bool
	// ReadOnly commands still run during a dry run.
	ReadOnly bool
}

// Frontend is an APT-compatible package manager.
type Frontend struct {
	// Name is the executable name looked up on PATH.
	Name string
	// Path is the resolved executable, empty until resolution.
	Path string
	// Steps maps each package step to its command.
	Steps map[StepName]Command
	// InstallArgs precede package names when installing missing tools.
	InstallArgs []string
}

// Resolved returns a copy bound to an executable path.
func (f Frontend) Resolved(path string) Frontend {
	f.Path = path

	return f
}

const (
	aptNothingPhrase  = "0 upgraded, 0 newly installed, 0 to remove"
	upToDatePhrase    = "All packages are up to date"
	nalaNothingToDo   = "Nothing for Nala to do"
	nalaNothingRemove = "Nothing for Nala to remove"

	// FwupdNothingToDo is the fwupdmgr exit status for "nothing to do".
	FwupdNothingToDo = 2
)

// KnownFrontends returns the built-in frontend definitions by executable name.
func KnownFrontends() map[string]Frontend {
	return map[string]Frontend{
		"nala": {
			Name: "nala",
			Steps: map[StepName]Command{
				StepPackageRefresh: {
					Args: []string{"update"},
					Rule: Rule{NoChangePhrases: []string{upToDatePhrase}},
				},
				StepUpgrade: {
					Args: []string{"upgrade", "--no-update", "-y"},
					Rule: Rule{NoChangePhrases: []string{upToDatePhrase, nalaNothingToDo}},
				},
				StepFullUpgrade: {
					Args: []string{"upgrade", "--full", "--no-update", "-y"},
					Rule: Rule{NoChangePhrases: []string{upToDatePhrase, nalaNothingToDo}},
				},
				StepAutoremove: {
					Args: []string{"autoremove", "-y"},
					Rule: Rule{NoChangePhrases: []string{nalaNothingRemove, nalaNothingToDo}},
				},
				StepAutoclean: {
					Args: []string{"clean"},
				},
			},
			InstallArgs: []string{"install", "-y"},
		},
		"apt": {
			Name: "apt",
			Steps: map[StepName]Command{
				StepPackageRefresh: {
					Args: []string{"update"},
					Rule: Rule{NoChangePhrases: []string{upToDatePhrase}},
				},
				StepUpgrade: {
					Args: []string{"upgrade", "-y"},
					Rule: Rule{NoChangePhrases: []string{aptNothingPhrase}},
				},
				StepFullUpgrade: {
					Args: []string{"full-upgrade", "-y"},
					Rule: Rule{NoChangePhrases: []string{aptNothingPhrase}},
				},
				StepAutoremove: {
					Args: []string{"autoremove", "-y"},
					Rule: Rule{NoChangePhrases: []string{aptNothingPhrase}},
				},
				StepAutoclean: {
					Args: []string{"autoclean"},
					Rule: Rule{ChangedPhrases: []string{"Del "}},
				},
			},
			InstallArgs: []string{"install", "-y"},
		},
	}
}

// SnapRefresh refreshes every installed snap.
func SnapRefresh() Command {
	return Command{
		Args: []string{"refresh"},
		Rule: Rule{NoChangePhrases: []string{"All snaps up to date"}},
	}
}

// FlatpakUpdate updates every installed flatpak without prompting.
func FlatpakUpdate() Command {
	return Command{
		Args: []string{"update", "-y", "--noninteractive"},
		Rule: Rule{NoChangePhrases: []string{"Nothing to do"}},
	}
}

// FirmwareRefresh downloads fresh firmware metadata.
func FirmwareRefresh() Command {
	return Command{
		Args: []string{"refresh", "--force"},
		Rule: Rule{
			NoChangeExitCodes: []int{FwupdNothingToDo},
			NoChangePhrases:   []string{"metadata is up to date", "already exists"},
		},
	}
}

// FirmwareQuery lists available firmware updates.
func FirmwareQuery() Command {
	return Command{
		Args: []string{"get-updates"},
		Rule: Rule{
			NoChangeExitCodes: []int{FwupdNothingToDo},
			NoChangePhrases: []string{
				"No updates available",
				"No updatable devices",
				"No upgrades for",
			},
		},
		ReadOnly: true,
	}
}

// FirmwareApply installs available firmware updates.
func FirmwareApply() Command {
	return Command{
		Args: []string{"update", "-y", "--no-reboot-check"},
		Rule: Rule{NoChangeExitCodes: []int{FwupdNothingToDo}},
	}
}

// BackupCreate takes a timeshift snapshot with the given comment.
func BackupCreate(comment string) Command {
	return Command{
		Args:   []string{"--create", "--comments", comment, "--scripted"},
		Strict: true,
	}
}
