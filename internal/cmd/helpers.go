package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/3leaps/gridharvest/internal/config"
	"github.com/3leaps/gridharvest/pkg/artifacts"
	"github.com/3leaps/gridharvest/pkg/collect"
	"github.com/3leaps/gridharvest/pkg/jobregistry"
	"github.com/3leaps/gridharvest/pkg/manifest"
	"github.com/3leaps/gridharvest/pkg/monitor"
	"github.com/3leaps/gridharvest/pkg/output"
	"github.com/3leaps/gridharvest/pkg/remote"
)

// codedError carries a process exit code alongside the underlying error.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }

func (e *codedError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, err: fmt.Errorf("%s: %w", message, err)}
}

// exitCodeFor extracts the exit code from an error chain, 1 when none is set.
func exitCodeFor(err error) int {
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return 1
}

// dialCluster opens the SSH session described by the manifest and wraps it
// in a timeout-bounded executor. The caller owns closing the session.
func dialCluster(m *manifest.Manifest) (*remote.SSHSession, *remote.Executor, error) {
	session, err := remote.DialSSH(remote.SSHConfig{
		Host:                  m.Connection.Host,
		Port:                  m.Connection.Port,
		User:                  m.Connection.User,
		IdentityFile:          m.Connection.IdentityFile,
		KnownHostsFile:        m.Connection.KnownHostsFile,
		InsecureIgnoreHostKey: m.Connection.InsecureIgnoreHostKey,
		ConnectTimeout:        m.Connection.ConnectTimeoutDuration(),
	})
	if err != nil {
		return nil, nil, err
	}
	executor := remote.NewExecutor(session, m.Connection.CommandTimeoutDuration())
	return session, executor, nil
}

// buildCollector assembles the locate-and-download pipeline for a manifest.
func buildCollector(executor *remote.Executor, m *manifest.Manifest, workspace string) (*collect.Collector, error) {
	locator, err := artifacts.NewLocator(executor, m.Results.Dir)
	if err != nil {
		return nil, err
	}
	if len(m.Results.Includes) > 0 || len(m.Results.Excludes) > 0 {
		matcher, err := artifacts.NewPathMatcher(m.Results.Includes, m.Results.Excludes)
		if err != nil {
			return nil, err
		}
		locator = locator.WithMatcher(matcher)
	}
	return collect.NewCollector(locator, executor, workspace)
}

// monitorConfig maps manifest watch settings onto the monitor.
func monitorConfig(m *manifest.Manifest) monitor.Config {
	return monitor.Config{
		Interval:               m.Watch.IntervalDuration(),
		MaxConsecutiveFailures: m.Watch.MaxConsecutiveFailures,
		RateLimit:              m.Watch.RateLimit,
		SettleDelay:            m.Results.SettleDelayDuration(),
	}
}

// createWriter creates an event writer from manifest output configuration.
// Returns the writer, a cleanup function, and any error.
func createWriter(m *manifest.Manifest, testID, jobID string) (output.Writer, func(), error) {
	dest := m.Output.Destination

	if dest == "" || dest == "stdout" {
		w := output.NewJSONLWriter(os.Stdout, testID, jobID)
		return w, func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output file %s: %w", path, err)
	}

	w := output.NewJSONLWriter(f, testID, jobID)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}

// registryStore opens the local submission registry under the app data dir.
func registryStore() *jobregistry.Store {
	cfg := config.GetConfig()
	return jobregistry.NewStore(cfg.RegistryDir())
}

// workspaceDir returns the local directory collections land in.
func workspaceDir() string {
	return config.GetConfig().WorkspaceDir()
}
