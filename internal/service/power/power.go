package power

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/linux-updater/internal/service/common"
)

const (
	// DefaultRebootRequiredFile is created by Debian-family packages that need a reboot.
	DefaultRebootRequiredFile = "/var/run/reboot-required"

	// rebootPackagesSuffix names the companion file listing the packages.
	rebootPackagesSuffix = ".pkgs"

	// rebootDelay gives logged-in users a minute before the reboot.
	rebootDelay = "+1"
)

// ErrRebootFailed indicates the reboot could not be scheduled.
var ErrRebootFailed = errors.New("reboot could not be scheduled")

// RebootRequired reports whether the flag file exists and which packages asked for it.
func RebootRequired(flagFile string) (bool, []string, error) {
	if _, err := os.Stat(flagFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil, nil
		}

		return false, nil, fmt.Errorf("stat %s: %w", flagFile, err)
	}

	packages, err := readPackages(flagFile + rebootPackagesSuffix)
	if err != nil {
		return true, nil, err
	}

	return true, packages, nil
}

// ScheduleReboot asks shutdown(8) to reboot the machine shortly.
func ScheduleReboot(ctx context.Context, runner common.Runner) error {
	result, err := runner.Run(ctx, "shutdown", "-r", rebootDelay)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRebootFailed, err)
	}

	if result.ExitCode != 0 {
		return fmt.Errorf("shutdown exited with %d: %w", result.ExitCode, ErrRebootFailed)
	}

	return nil
}

// readPackages returns the unique package names from the .pkgs file, if any.
func readPackages(path string) ([]string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	var (
		packages []string
		seen     = make(map[string]struct{})
		scanner  = bufio.NewScanner(file)
	)

	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}

		if _, dup := seen[name]; dup {
			continue
		}

		seen[name] = struct{}{}
		packages = append(packages, name)
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return packages, nil
}
