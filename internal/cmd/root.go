// Package cmd implements the gridharvest command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/3leaps/gridharvest/internal/config"
	"github.com/3leaps/gridharvest/internal/observability"
)

// versionInfo holds build-time version metadata, set via SetVersionInfo
// from main before Execute.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	logLevel   string
	logProfile string
	dataDir    string
)

var rootCmd = &cobra.Command{
	Use:   "gridharvest",
	Short: "Submit, watch, and harvest batch jobs on remote clusters",
	Long: `gridharvest submits batch scripts to a SLURM cluster over SSH,
polls them until completion, and collects their result artifacts to the
local machine.

A job manifest (YAML or JSON) describes the cluster connection, the
script to submit, and where results land. See 'gridharvest submit --help'
to get started.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]any{}
		if logLevel != "" {
			overrides["logging"] = map[string]any{"level": logLevel}
		}
		if logProfile != "" {
			logging, _ := overrides["logging"].(map[string]any)
			if logging == nil {
				logging = map[string]any{}
			}
			logging["profile"] = logProfile
			overrides["logging"] = logging
		}
		if dataDir != "" {
			overrides["data"] = map[string]any{"dir": dataDir}
		}

		cfg, err := config.Load(cmd.Context(), overrides)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := observability.InitCLILogger(cfg.Logging.Level, cfg.Logging.Profile); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logProfile, "log-profile", "", "Log encoding (structured|console)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "App data directory (default ~/.gridharvest)")
}

// Execute runs the CLI with a signal-aware context. SIGINT and SIGTERM
// cancel in-flight operations; the watch loop's timed wait unblocks
// immediately rather than finishing the interval.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		observability.Sync()
		os.Exit(exitCodeFor(err))
	}
	observability.Sync()
}
