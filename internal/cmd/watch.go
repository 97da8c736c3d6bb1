package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gridharvest/internal/observability"
	"github.com/3leaps/gridharvest/pkg/archive"
	"github.com/3leaps/gridharvest/pkg/collect"
	"github.com/3leaps/gridharvest/pkg/jobregistry"
	"github.com/3leaps/gridharvest/pkg/manifest"
	"github.com/3leaps/gridharvest/pkg/monitor"
	"github.com/3leaps/gridharvest/pkg/output"
	"github.com/3leaps/gridharvest/pkg/remote"
	"github.com/3leaps/gridharvest/pkg/scheduler"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a submitted job until it finishes",
	Long: `Poll a previously submitted job until it reaches a terminal state,
then collect its result artifacts.

The job is identified by the test id printed at submission time. Polling
survives transient transport failures up to the manifest's
max_consecutive_failures; cancellation (Ctrl-C) interrupts the wait
immediately.

Example:
  gridharvest watch --job job.yaml --test-id 3f8a...
  gridharvest watch --job job.yaml --test-id 3f8a... --quiet`,
	RunE: runWatch,
}

var (
	watchJobPath string
	watchTestID  string
	watchOutput  string
	watchQuiet   bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchJobPath, "job", "j", "", "Path to job manifest (required)")
	watchCmd.Flags().StringVarP(&watchTestID, "test-id", "t", "", "Submission test id (required)")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "Override event stream destination")
	watchCmd.Flags().BoolVarP(&watchQuiet, "quiet", "q", false, "Suppress per-poll status records")

	_ = watchCmd.MarkFlagRequired("job")
	_ = watchCmd.MarkFlagRequired("test-id")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := manifest.Load(watchJobPath)
	if err != nil {
		observability.CLILogger.Error("Failed to load manifest",
			zap.String("path", watchJobPath),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	if watchOutput != "" {
		m.Output.Destination = watchOutput
	}
	if watchQuiet {
		enabled := false
		m.Output.Progress = &enabled
	}

	record, err := registryStore().Get(watchTestID)
	if err != nil {
		observability.CLILogger.Error("Unknown submission",
			zap.String("test_id", watchTestID),
			zap.Error(err))
		return exitError(foundry.ExitFileNotFound, "Unknown submission", err)
	}
	if record.JobID == "" {
		return exitError(foundry.ExitInvalidArgument, "Submission has no job id",
			fmt.Errorf("test id %s was never submitted", watchTestID))
	}

	session, executor, err := dialCluster(m)
	if err != nil {
		observability.CLILogger.Error("Failed to connect",
			zap.String("host", m.Connection.Host),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to cluster", err)
	}
	defer func() { _ = session.Close() }()

	writer, cleanup, err := createWriter(m, record.TestID, record.JobID)
	if err != nil {
		observability.CLILogger.Error("Failed to create writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	return executeWatch(ctx, m, executor, writer, record.TestID, record.JobID)
}

// executeWatch runs the monitor loop for one job, records the terminal
// state in the registry, and archives the collection when configured.
// Shared by the watch command and submit --watch.
func executeWatch(ctx context.Context, m *manifest.Manifest, executor *remote.Executor, writer output.Writer, testID, jobID string) error {
	collector, err := buildCollector(executor, m, workspaceDir())
	if err != nil {
		observability.CLILogger.Error("Failed to build collector", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid collection patterns", err)
	}

	mon, err := monitor.New(executor, collector, jobID, testID, monitorConfig(m))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid watch parameters", err)
	}
	mon.WithLogger(observability.CLILogger)
	if m.Output.ProgressEnabled() {
		mon.WithWriter(writer)
	}
	if len(m.Results.NameFilters) > 0 {
		mon.WithNameFilter(scheduler.NewNameFilter(m.Results.NameFilters))
	}

	observability.CLILogger.Info("Watching job",
		zap.String("test_id", testID),
		zap.String("job_id", jobID),
		zap.Duration("interval", m.Watch.IntervalDuration()))

	result, err := mon.Watch(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			observability.CLILogger.Warn("Watch cancelled",
				zap.String("test_id", testID),
				zap.String("job_id", jobID))
			return exitError(foundry.ExitSignalInt, "Watch cancelled", err)
		}
		var fatal *monitor.FatalError
		if errors.As(err, &fatal) {
			observability.CLILogger.Error("Watch gave up after repeated failures",
				zap.String("job_id", jobID),
				zap.Int("consecutive_failures", fatal.ConsecutiveFailures),
				zap.Error(fatal.Err))
			return exitError(foundry.ExitExternalServiceUnavailable, "Lost contact with cluster", err)
		}
		observability.CLILogger.Error("Watch failed",
			zap.String("job_id", jobID),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Watch failed", err)
	}

	return finishCollection(ctx, m, testID, result.State, result.Collection)
}

// finishCollection persists the terminal outcome and runs the optional
// S3 archive step.
func finishCollection(ctx context.Context, m *manifest.Manifest, testID string, state scheduler.State, col *collect.Result) error {
	outcome := ""
	localDir := ""
	if col != nil {
		outcome = string(col.Outcome)
		localDir = col.LocalDir
	}
	if _, err := registryStore().MarkTerminal(testID, registryState(state), outcome, localDir); err != nil {
		observability.CLILogger.Warn("Failed to update registry",
			zap.String("test_id", testID),
			zap.Error(err))
	}

	if col == nil {
		fmt.Printf("Job finished in state %s; collection already recorded\n", state)
		return nil
	}

	fmt.Printf("Job finished in state %s\n", state)
	fmt.Printf("Outcome:   %s\n", col.Outcome)
	if col.LocalDir != "" {
		fmt.Printf("Collected: %s (%d files)\n", col.LocalDir, len(col.Files))
	}
	if col.TransferErrors > 0 {
		fmt.Printf("Warning:   %d file(s) failed to transfer\n", col.TransferErrors)
	}

	if m.Archive != nil && col.LocalDir != "" {
		if err := archiveCollection(ctx, m.Archive, col.LocalDir, testID); err != nil {
			observability.CLILogger.Error("Archive upload failed", zap.Error(err))
			return exitError(foundry.ExitExternalServiceUnavailable, "Archive upload failed", err)
		}
	}
	return nil
}

// archiveCollection uploads a collection directory to the configured bucket.
func archiveCollection(ctx context.Context, cfg *manifest.ArchiveConfig, localDir, testID string) error {
	uploader, err := archive.New(ctx, archive.Config{
		Bucket:   cfg.Bucket,
		Region:   cfg.Region,
		Prefix:   cfg.Prefix,
		Endpoint: cfg.Endpoint,
		Profile:  cfg.Profile,
		// S3-compatible services (MinIO, Wasabi, etc.) require path-style URLs.
		ForcePathStyle: cfg.Endpoint != "",
	})
	if err != nil {
		return err
	}

	res, err := uploader.UploadDir(ctx, localDir, testID)
	if err != nil {
		return err
	}
	observability.CLILogger.Info("Archived collection",
		zap.String("bucket", res.Bucket),
		zap.Int("objects", len(res.Keys)),
		zap.Int("skipped", res.Skipped))
	fmt.Printf("Archived:  s3://%s (%d objects)\n", res.Bucket, len(res.Keys))
	return nil
}

// registryState maps a scheduler terminal state onto the registry's
// submission lifecycle.
func registryState(state scheduler.State) jobregistry.SubmissionState {
	switch state {
	case scheduler.StateCompleted:
		return jobregistry.SubmissionStateCompleted
	case scheduler.StateFailed:
		return jobregistry.SubmissionStateFailed
	case scheduler.StateCancelled:
		return jobregistry.SubmissionStateCancelled
	default:
		return jobregistry.SubmissionStateUnknown
	}
}
