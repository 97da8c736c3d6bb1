package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gridharvest/internal/observability"
	"github.com/3leaps/gridharvest/pkg/collect"
	"github.com/3leaps/gridharvest/pkg/manifest"
	"github.com/3leaps/gridharvest/pkg/scheduler"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect result artifacts for a submission",
	Long: `Locate and download a job's result artifacts into the local
workspace, classify the outcome from marker files, and write summary
files alongside the artifacts.

Collection is idempotent: re-running overwrites the same collection
directory. An in-progress job (no marker yet) collects nothing unless
--force is given.

Example:
  gridharvest collect --job job.yaml --test-id 3f8a...
  gridharvest collect --job job.yaml --test-id 3f8a... --force`,
	RunE: runCollect,
}

var (
	collectJobPath string
	collectTestID  string
	collectForce   bool
)

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVarP(&collectJobPath, "job", "j", "", "Path to job manifest (required)")
	collectCmd.Flags().StringVarP(&collectTestID, "test-id", "t", "", "Submission test id (required)")
	collectCmd.Flags().BoolVarP(&collectForce, "force", "f", false, "Collect even when no outcome marker exists yet")

	_ = collectCmd.MarkFlagRequired("job")
	_ = collectCmd.MarkFlagRequired("test-id")
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := manifest.Load(collectJobPath)
	if err != nil {
		observability.CLILogger.Error("Failed to load manifest",
			zap.String("path", collectJobPath),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	record, err := registryStore().Get(collectTestID)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Unknown submission", err)
	}
	if record.JobID == "" {
		return exitError(foundry.ExitInvalidArgument, "Submission has no job id",
			fmt.Errorf("test id %s was never submitted", collectTestID))
	}

	session, executor, err := dialCluster(m)
	if err != nil {
		observability.CLILogger.Error("Failed to connect",
			zap.String("host", m.Connection.Host),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to cluster", err)
	}
	defer func() { _ = session.Close() }()

	collector, err := buildCollector(executor, m, workspaceDir())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid collection patterns", err)
	}

	if !collectForce {
		outcome, err := collector.Probe(ctx, record.JobID)
		if err != nil {
			observability.CLILogger.Error("Probe failed",
				zap.String("job_id", record.JobID),
				zap.Error(err))
			return exitError(foundry.ExitExternalServiceUnavailable, "Probe failed", err)
		}
		if outcome == collect.OutcomeInProgress {
			fmt.Println("No outcome marker yet; job may still be running. Use --force to collect anyway.")
			return nil
		}
	}

	result, err := collector.Collect(ctx, record.JobID, record.TestID)
	if err != nil {
		observability.CLILogger.Error("Collection failed",
			zap.String("job_id", record.JobID),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Collection failed", err)
	}

	observability.CLILogger.Info("Collection finished",
		zap.String("test_id", record.TestID),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("files", len(result.Files)),
		zap.Int("transfer_errors", result.TransferErrors))

	// A forced collection of a still-running job is a preview, not a
	// terminal outcome; leave the registry lifecycle untouched.
	switch result.Outcome {
	case collect.OutcomeSuccess:
		return finishCollection(ctx, m, record.TestID, scheduler.StateCompleted, result)
	case collect.OutcomeFailed:
		return finishCollection(ctx, m, record.TestID, scheduler.StateFailed, result)
	default:
		fmt.Printf("Outcome:   %s\n", result.Outcome)
		if result.LocalDir != "" {
			fmt.Printf("Collected: %s (%d files)\n", result.LocalDir, len(result.Files))
		}
		return nil
	}
}
