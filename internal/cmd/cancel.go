package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gridharvest/internal/observability"
	"github.com/3leaps/gridharvest/pkg/jobregistry"
	"github.com/3leaps/gridharvest/pkg/manifest"
	"github.com/3leaps/gridharvest/pkg/scheduler"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a submitted job",
	Long: `Ask the scheduler to cancel a submitted job and mark the
submission cancelled in the local registry.

Example:
  gridharvest cancel --job job.yaml --test-id 3f8a...`,
	RunE: runCancel,
}

var (
	cancelJobPath string
	cancelTestID  string
)

func init() {
	rootCmd.AddCommand(cancelCmd)

	cancelCmd.Flags().StringVarP(&cancelJobPath, "job", "j", "", "Path to job manifest (required)")
	cancelCmd.Flags().StringVarP(&cancelTestID, "test-id", "t", "", "Submission test id (required)")

	_ = cancelCmd.MarkFlagRequired("job")
	_ = cancelCmd.MarkFlagRequired("test-id")
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := manifest.Load(cancelJobPath)
	if err != nil {
		observability.CLILogger.Error("Failed to load manifest",
			zap.String("path", cancelJobPath),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	record, err := registryStore().Get(cancelTestID)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Unknown submission", err)
	}
	if record.JobID == "" {
		return exitError(foundry.ExitInvalidArgument, "Submission has no job id",
			fmt.Errorf("test id %s was never submitted", cancelTestID))
	}

	session, executor, err := dialCluster(m)
	if err != nil {
		observability.CLILogger.Error("Failed to connect",
			zap.String("host", m.Connection.Host),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to cluster", err)
	}
	defer func() { _ = session.Close() }()

	res, err := executor.Execute(ctx, scheduler.CancelCommand(record.JobID))
	if err != nil {
		observability.CLILogger.Error("Cancel failed",
			zap.String("job_id", record.JobID),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Cancel failed", err)
	}
	if !res.Ok() {
		return exitError(foundry.ExitExternalServiceUnavailable, "Cancel rejected",
			fmt.Errorf("scancel exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr)))
	}

	if _, err := registryStore().Update(record.TestID, func(r *jobregistry.SubmissionRecord) {
		r.State = jobregistry.SubmissionStateCancelled
	}); err != nil {
		observability.CLILogger.Warn("Failed to update registry", zap.Error(err))
	}

	observability.CLILogger.Info("Job cancelled",
		zap.String("test_id", record.TestID),
		zap.String("job_id", record.JobID))
	fmt.Printf("Cancelled job %s (test id %s)\n", record.JobID, record.TestID)
	return nil
}
