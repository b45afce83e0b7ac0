package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the knobs of a single update run.
type Config struct {
	// LogDirectory is where run logs are written. A relative value is
	// resolved against the invoking user's home directory.
	LogDirectory string `yaml:"log_directory"`
	// Frontends lists APT-compatible frontends in order of preference.
	Frontends []string `yaml:"frontends"`
	// RequiredTools maps executables that must exist to the packages providing them.
	RequiredTools map[string]string `yaml:"required_tools"`
	// ProbeAddress is the host:port dialed to confirm connectivity.
	ProbeAddress string `yaml:"probe_address"`
	// ProbeTimeout bounds the connectivity probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// CommandTimeout bounds each subprocess. Zero disables the limit.
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// MinFreeKiB is the minimum free space on the root filesystem.
	MinFreeKiB uint64 `yaml:"min_free_kib"`
	// BackupComment is passed to timeshift as the snapshot comment.
	BackupComment string `yaml:"backup_comment"`
	// BackupRequired aborts the run when the snapshot fails.
	BackupRequired bool `yaml:"backup_required"`
	// StrictExitCodes classifies non-zero exits as failures instead of trusting output text.
	StrictExitCodes bool `yaml:"strict_exit_codes"`
	// AlwaysAutoclean runs autoclean even when autoremove removed nothing.
	AlwaysAutoclean bool `yaml:"always_autoclean"`
	// RebootIfRequired schedules a reboot when packages ask for one.
	RebootIfRequired bool `yaml:"reboot_if_required"`
	// SkipBackup disables the snapshot step.
	SkipBackup bool `yaml:"skip_backup"`
	// SkipSnap disables the snap refresh step.
	SkipSnap bool `yaml:"skip_snap"`
	// SkipFlatpak disables the flatpak update step.
	SkipFlatpak bool `yaml:"skip_flatpak"`
	// SkipFirmware disables both firmware steps.
	SkipFirmware bool `yaml:"skip_firmware"`
	// NoChangePhrases adds extra "nothing to do" phrases per step name.
	NoChangePhrases map[string][]string `yaml:"no_change_phrases"`
}

const (
	// DefaultConfigFilename is the default filename for run settings.
	DefaultConfigFilename = "linux-updater-settings.yaml"

	// DefaultLogDirectory is relative to the invoking user's home.
	DefaultLogDirectory = "linux-scripts/script_logs"

	// DefaultProbeAddress is a well-known host used for the connectivity check.
	DefaultProbeAddress = "google.com:443"

	// DefaultProbeTimeout is the default duration of the connectivity check.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultMinFreeKiB is 2 GiB expressed in KiB.
	DefaultMinFreeKiB uint64 = 2 * 1024 * 1024

	// DefaultBackupComment labels snapshots taken before an update.
	DefaultBackupComment = "Before system update"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNoFrontends is returned when the frontend list ends up empty.
	errNoFrontends = errors.New("at least one package frontend must be listed")
	// errEmptyToolPackage is returned when a required tool has no package to install it from.
	errEmptyToolPackage = errors.New("required tool has no package name")
)

// Default returns the built-in settings used when no file exists.
func Default() *Config {
	cfg := new(Config)
	cfg.StrictExitCodes = true
	applyDefaults(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
// A missing file at the default path yields Default().
func Load(path string) (*Config, error) {
	explicit := path != "" && path != DefaultConfigFilename
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	// yaml.v3 merges into existing maps, so the tool list starts empty and
	// only falls back to the defaults when the file omits it.
	cfg := Default()
	cfg.RequiredTools = nil

	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills zero values with defaults and checks the remaining fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if _, _, err := net.SplitHostPort(cfg.ProbeAddress); err != nil {
		return fmt.Errorf("invalid probe address: %w", err)
	}

	frontends := cfg.Frontends[:0]
	for _, name := range cfg.Frontends {
		if name = strings.TrimSpace(name); name != "" {
			frontends = append(frontends, name)
		}
	}

	if len(frontends) == 0 {
		return errNoFrontends
	}

	cfg.Frontends = frontends

	for tool, pkg := range cfg.RequiredTools {
		if strings.TrimSpace(pkg) == "" {
			return fmt.Errorf("%s: %w", tool, errEmptyToolPackage)
		}
	}

	return nil
}

// ResolveLogDirectory returns the absolute log directory for the given home.
func (c *Config) ResolveLogDirectory(home string) string {
	dir := c.LogDirectory
	if dir == "" {
		dir = DefaultLogDirectory
	}

	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}

	return filepath.Join(home, dir)
}

// applyDefaults sets every unset field to its default value.
func applyDefaults(cfg *Config) {
	if cfg.LogDirectory == "" {
		cfg.LogDirectory = DefaultLogDirectory
	}

	if len(cfg.Frontends) == 0 {
		cfg.Frontends = []string{"nala", "apt"}
	}

	if cfg.RequiredTools == nil {
		cfg.RequiredTools = map[string]string{
			"timeshift": "timeshift",
			"snap":      "snapd",
			"fwupdmgr":  "fwupd",
		}
	}

	if cfg.ProbeAddress == "" {
		cfg.ProbeAddress = DefaultProbeAddress
	}

	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}

	if cfg.MinFreeKiB == 0 {
		cfg.MinFreeKiB = DefaultMinFreeKiB
	}

	if cfg.BackupComment == "" {
		cfg.BackupComment = DefaultBackupComment
	}
}
