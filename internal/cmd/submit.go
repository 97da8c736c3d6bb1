package cmd

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gridharvest/internal/observability"
	"github.com/3leaps/gridharvest/pkg/jobregistry"
	"github.com/3leaps/gridharvest/pkg/manifest"
	"github.com/3leaps/gridharvest/pkg/output"
	"github.com/3leaps/gridharvest/pkg/remote"
	"github.com/3leaps/gridharvest/pkg/scheduler"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a batch job from manifest",
	Long: `Upload a batch script to the cluster described in a YAML or JSON
manifest, submit it to the scheduler, and record the submission in the
local registry.

A test id is generated for every submission and is the handle all other
commands use to refer to it.

Example:
  gridharvest submit --job job.yaml
  gridharvest submit --job job.yaml --watch
  gridharvest submit --job job.yaml --output events.jsonl`,
	RunE: runSubmit,
}

var (
	submitJobPath string
	submitOutput  string
	submitWatch   bool
	submitQuiet   bool
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&submitJobPath, "job", "j", "", "Path to job manifest (required)")
	submitCmd.Flags().StringVarP(&submitOutput, "output", "o", "", "Override event stream destination")
	submitCmd.Flags().BoolVarP(&submitWatch, "watch", "w", false, "Watch the job until it finishes and collect results")
	submitCmd.Flags().BoolVarP(&submitQuiet, "quiet", "q", false, "Suppress per-poll status records while watching")

	_ = submitCmd.MarkFlagRequired("job")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := manifest.Load(submitJobPath)
	if err != nil {
		observability.CLILogger.Error("Failed to load manifest",
			zap.String("path", submitJobPath),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	if submitOutput != "" {
		m.Output.Destination = submitOutput
	}
	if submitQuiet {
		enabled := false
		m.Output.Progress = &enabled
	}

	testID := uuid.New().String()

	session, executor, err := dialCluster(m)
	if err != nil {
		observability.CLILogger.Error("Failed to connect",
			zap.String("host", m.Connection.Host),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to cluster", err)
	}
	defer func() { _ = session.Close() }()

	jobID, raw, err := submitJob(ctx, executor, m)
	if err != nil {
		observability.CLILogger.Error("Submission failed",
			zap.String("test_id", testID),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Submission failed", err)
	}

	now := time.Now().UTC()
	record := &jobregistry.SubmissionRecord{
		TestID:     testID,
		JobID:      jobID,
		Name:       m.Job.Name,
		State:      jobregistry.SubmissionStateSubmitted,
		Script:     m.Job.Script,
		ScriptArgs: m.Job.ScriptArgs,
		WorkDir:    m.Job.RemoteDir,
		ResultsDir: m.Results.Dir,
		Target: &jobregistry.RemoteTarget{
			Host: m.Connection.Host,
			Port: m.Connection.Port,
			User: m.Connection.User,
		},
		CreatedAt:   now,
		SubmittedAt: &now,
	}
	if err := registryStore().Write(record); err != nil {
		observability.CLILogger.Error("Failed to record submission", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to record submission", err)
	}

	writer, cleanup, err := createWriter(m, testID, jobID)
	if err != nil {
		observability.CLILogger.Error("Failed to create writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	if err := writer.WriteSubmit(ctx, &output.SubmitRecord{
		Host:      m.Connection.Host,
		Script:    m.Job.Script,
		Name:      m.Job.Name,
		RawOutput: raw,
	}); err != nil {
		observability.CLILogger.Warn("Failed to write submit record", zap.Error(err))
	}

	observability.CLILogger.Info("Job submitted",
		zap.String("test_id", testID),
		zap.String("job_id", jobID),
		zap.String("host", m.Connection.Host))

	if !submitWatch {
		fmt.Printf("Submitted job %s (test id %s)\n", jobID, testID)
		return nil
	}

	return executeWatch(ctx, m, executor, writer, testID, jobID)
}

// submitJob uploads the script and runs the scheduler submit command.
// Returns the scheduler-assigned job id and the raw submission output.
func submitJob(ctx context.Context, executor *remote.Executor, m *manifest.Manifest) (string, string, error) {
	remotePath := remoteScriptPath(m)
	if err := executor.PutFile(ctx, m.Job.Script, remotePath); err != nil {
		return "", "", fmt.Errorf("upload script: %w", err)
	}

	cmd := scheduler.SubmitCommandWith(remotePath, scheduler.SubmitOptions{
		JobName:     m.Job.Name,
		LogTemplate: m.Job.Output,
		SubmitArgs:  m.Job.SubmitArgs,
		ScriptArgs:  m.Job.ScriptArgs,
	})
	res, err := executor.Execute(ctx, cmd)
	if err != nil {
		return "", "", err
	}
	if !res.Ok() {
		return "", "", fmt.Errorf("sbatch exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	jobID := scheduler.ParseSubmitOutput(res.Stdout)
	if jobID == "" {
		return "", "", fmt.Errorf("no job id in submission output: %q", strings.TrimSpace(res.Stdout))
	}
	return jobID, strings.TrimSpace(res.Stdout), nil
}

// remoteScriptPath resolves where the script lands on the cluster. Scripts
// always upload into remote_dir (or the login home when unset) under their
// local base name.
func remoteScriptPath(m *manifest.Manifest) string {
	base := filepath.Base(m.Job.Script)
	if m.Job.RemoteDir == "" {
		return base
	}
	return path.Join(m.Job.RemoteDir, base)
}
