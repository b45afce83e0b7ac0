package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/linux-updater/internal/config"
	"github.com/oshokin/linux-updater/internal/logger"
	"github.com/oshokin/linux-updater/internal/service/orchestrator"
	"github.com/oshokin/linux-updater/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel overrides the console log level.
	logLevel string
	// runOptions collects the step switches bound to flags.
	runOptions orchestrator.Options

	// rootCmd runs a full system update.
	rootCmd = &cobra.Command{
		Use:   "linux-updater",
		Short: "Update APT, Snap, Flatpak and firmware in one go.",
		Long: `Runs the system package managers one after another and logs every step.

Before touching the system it checks for root privileges, installs missing
required tools, takes a Timeshift snapshot, probes the network and makes sure
at least 2 GiB are free on the root filesystem. It then refreshes and upgrades
APT packages (through nala when available), refreshes snaps, updates flatpaks
and applies firmware updates through fwupdmgr.

Each run writes a timestamped log to ~/linux-scripts/script_logs of the user
who invoked sudo. A failed preflight check or an interrupt exits with status 1.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if logLevel != "" {
				level, ok := logger.ParseLogLevel(logLevel)
				if !ok {
					return fmt.Errorf("unknown log level %q", logLevel)
				}

				logger.SetLevel(level)
			}

			opts := runOptions
			opts.ConfigPath = configPath
			opts.Stream = cmd.OutOrStdout()

			report, err := orchestrator.Run(ctx, &opts)
			if summary := orchestrator.RenderSummary(report); summary != "" {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), summary)
			}

			return err
		},
	}
)

// Execute runs the linux-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&logLevel, "log-level", "", "console log level: debug, info, warn or error")
	flags.BoolVar(&runOptions.DryRun, "dry-run", false, "log mutating commands without running them")
	flags.BoolVar(&runOptions.SkipBackup, "skip-backup", false, "do not take a Timeshift snapshot")
	flags.BoolVar(&runOptions.SkipSnap, "skip-snap", false, "do not refresh snaps")
	flags.BoolVar(&runOptions.SkipFlatpak, "skip-flatpak", false, "do not update flatpaks")
	flags.BoolVar(&runOptions.SkipFirmware, "skip-firmware", false, "do not refresh or apply firmware")
}
