package cmd

import (
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gridharvest/internal/observability"
	"github.com/3leaps/gridharvest/pkg/jobregistry"
	"github.com/3leaps/gridharvest/pkg/manifest"
	"github.com/3leaps/gridharvest/pkg/monitor"
	"github.com/3leaps/gridharvest/pkg/scheduler"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the current state of a submitted job",
	Long: `Query the scheduler once for the current state of a submission.

A job absent from the active queue has either finished (and been purged
from the queue) or was never accepted; run 'gridharvest watch' or
'gridharvest collect' to resolve the final outcome from result markers.

Example:
  gridharvest status --job job.yaml --test-id 3f8a...`,
	RunE: runStatus,
}

var (
	statusJobPath string
	statusTestID  string
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusJobPath, "job", "j", "", "Path to job manifest (required)")
	statusCmd.Flags().StringVarP(&statusTestID, "test-id", "t", "", "Submission test id (required)")

	_ = statusCmd.MarkFlagRequired("job")
	_ = statusCmd.MarkFlagRequired("test-id")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := manifest.Load(statusJobPath)
	if err != nil {
		observability.CLILogger.Error("Failed to load manifest",
			zap.String("path", statusJobPath),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	record, err := registryStore().Get(statusTestID)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Unknown submission", err)
	}
	if record.JobID == "" {
		return exitError(foundry.ExitInvalidArgument, "Submission has no job id",
			fmt.Errorf("test id %s was never submitted", statusTestID))
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

	mon, err := monitor.New(executor, collector, record.JobID, record.TestID, monitorConfig(m))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid watch parameters", err)
	}
	if len(m.Results.NameFilters) > 0 {
		mon.WithNameFilter(scheduler.NewNameFilter(m.Results.NameFilters))
	}

	snapshot, err := mon.CheckStatus(ctx)
	if err != nil {
		observability.CLILogger.Error("Status query failed",
			zap.String("job_id", record.JobID),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Status query failed", err)
	}

	now := time.Now().UTC()
	if _, err := registryStore().Update(record.TestID, func(r *jobregistry.SubmissionRecord) {
		r.LastPolledAt = &now
		if snapshot != nil && snapshot.State == scheduler.StateRunning {
			r.State = jobregistry.SubmissionStateRunning
		}
	}); err != nil {
		observability.CLILogger.Warn("Failed to update registry", zap.Error(err))
	}

	fmt.Printf("Test:  %s\n", record.TestID)
	fmt.Printf("Job:   %s\n", record.JobID)
	if snapshot == nil {
		fmt.Println("State: not in queue (finished or purged)")
		return nil
	}
	fmt.Printf("State: %s\n", snapshot.State)
	if snapshot.Elapsed != "" {
		fmt.Printf("Elapsed: %s\n", snapshot.Elapsed)
	}
	if snapshot.Nodes > 0 {
		fmt.Printf("Nodes: %d\n", snapshot.Nodes)
	}
	if snapshot.Reason != "" && snapshot.Reason != "None" {
		fmt.Printf("Reason: %s\n", snapshot.Reason)
	}
	return nil
}
