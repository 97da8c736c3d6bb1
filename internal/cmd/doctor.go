package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gridharvest/internal/config"
	"github.com/3leaps/gridharvest/internal/observability"
	"github.com/3leaps/gridharvest/pkg/manifest"
)

var doctorJobPath string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the local environment and, when a manifest
is given, against the cluster it describes.

Examples:
  gridharvest doctor                  # Local environment checks
  gridharvest doctor --job job.yaml   # Also verify cluster connectivity`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVarP(&doctorJobPath, "job", "j", "", "Verify connectivity for this manifest")
}

func runDoctor(cmd *cobra.Command, args []string) {
	observability.CLILogger.Info("=== gridharvest doctor ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 3
	if doctorJobPath != "" {
		totalChecks = 7
	}

	// Check 1: Go runtime
	goVersion := runtime.Version()
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking runtime... ✅ %s %s/%s", checkNum, totalChecks, goVersion, runtime.GOOS, runtime.GOARCH),
		zap.String("go_version", goVersion),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	// Check 2: Data directory
	cfg := config.GetConfig()
	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking data directory... ❌ %s not writable", checkNum, totalChecks, cfg.Data.Dir),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking data directory... ✅ %s", checkNum, totalChecks, cfg.Data.Dir),
			zap.String("data_dir", cfg.Data.Dir))
	}
	checkNum++

	// Check 3: SSH agent
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking ssh-agent... ✅ %s", checkNum, totalChecks, sock))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking ssh-agent... ⚠️  SSH_AUTH_SOCK not set (identity_file required in manifests)", checkNum, totalChecks))
	}
	checkNum++

	if doctorJobPath != "" {
		allChecks = runClusterChecks(cmd.Context(), checkNum, totalChecks) && allChecks
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info("✅ All checks passed! Your gridharvest installation is healthy.")
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// runClusterChecks verifies the manifest, the SSH connection, the
// scheduler toolchain, and the results directory.
func runClusterChecks(ctx context.Context, checkNum, totalChecks int) bool {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Cluster Checks:")

	// Manifest validity
	m, err := manifest.Load(doctorJobPath)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking manifest... ❌ %v", checkNum, totalChecks, err))
		return false
	}
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking manifest... ✅ %s", checkNum, totalChecks, doctorJobPath),
		zap.String("host", m.Connection.Host))
	checkNum++

	// SSH connectivity
	session, executor, err := dialCluster(m)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking SSH connection... ❌ %v", checkNum, totalChecks, err))
		printSSHHelp()
		return false
	}
	defer func() { _ = session.Close() }()
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking SSH connection... ✅ %s", checkNum, totalChecks, m.Connection.Host))
	checkNum++

	ok := true

	// Scheduler toolchain
	res, err := executor.Execute(ctx, "command -v sbatch squeue scancel")
	if err != nil || !res.Ok() {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking scheduler commands... ❌ sbatch/squeue/scancel not all on PATH", checkNum, totalChecks))
		ok = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking scheduler commands... ✅ sbatch, squeue, scancel", checkNum, totalChecks))
	}
	checkNum++

	// Results directory
	res, err = executor.Execute(ctx, "test -d "+m.Results.Dir)
	switch {
	case err != nil:
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking results directory... ❌ %v", checkNum, totalChecks, err))
		ok = false
	case !res.Ok():
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking results directory... ⚠️  %s does not exist yet", checkNum, totalChecks, m.Results.Dir))
	default:
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking results directory... ✅ %s", checkNum, totalChecks, m.Results.Dir))
	}

	if m.Archive != nil {
		ok = runArchiveChecks(ctx, m) && ok
	}
	return ok
}

// runArchiveChecks verifies AWS credentials resolve for the archive step.
func runArchiveChecks(ctx context.Context, m *manifest.Manifest) bool {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Archive Checks:")

	var opts []func(*awsconfig.LoadOptions) error
	if m.Archive.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(m.Archive.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		observability.CLILogger.Error("Checking AWS credentials... ❌ Cannot load AWS config", zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		observability.CLILogger.Error("Checking AWS credentials... ❌ Cannot retrieve credentials", zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	observability.CLILogger.Info("Checking AWS credentials... ✅ Found credentials",
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", creds.Source),
		zap.String("bucket", m.Archive.Bucket))
	return true
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printSSHHelp prints help for SSH connection failures.
func printSSHHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To fix SSH connectivity:")
	observability.CLILogger.Info("  1. Verify host and user in the manifest's connection section")
	observability.CLILogger.Info("  2. Set identity_file or run an ssh-agent with your key loaded")
	observability.CLILogger.Info("  3. Add the host key to known_hosts: ssh-keyscan <host> >> ~/.ssh/known_hosts")
	observability.CLILogger.Info("")
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Run 'aws configure' to set up a profile, or")
	observability.CLILogger.Info("  3. Use IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also set:")
	observability.CLILogger.Info("  - endpoint in the manifest's archive section")
	observability.CLILogger.Info("")
}
