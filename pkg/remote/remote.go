// Package remote provides command execution and file transfer against a
// remote host over SSH.
//
// A Session owns one transport connection. Sessions are not safe for
// concurrent use - callers that monitor multiple jobs should open one
// session per monitor. The Executor wraps a Session with a hard per-command
// wall-clock timeout and converts transport faults into a small, stable
// error taxonomy so callers can apply retry policy without inspecting
// SSH-level errors.
package remote

import (
	"context"
)

// Session is a single remote-shell transport connection.
//
// Implementations should:
//   - Execute each command in a fresh remote shell
//   - Report the remote exit code when the command itself fails
//   - Not retry; retry policy belongs to the caller
type Session interface {
	// Run executes a shell command on the remote host and returns its
	// exit code and captured output. A non-zero remote exit code is not
	// an error; transport-level failures are.
	Run(ctx context.Context, command string) (*Result, error)

	// Fetch copies a remote file to a local path.
	Fetch(ctx context.Context, remotePath, localPath string) error

	// Put copies a local file to a remote path.
	Put(ctx context.Context, localPath, remotePath string) error

	// Close releases the underlying connection.
	Close() error
}

// Result is the outcome of one remote command invocation.
type Result struct {
	// ExitCode is the remote command's exit status. Zero on success.
	ExitCode int

	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string
}

// Ok reports whether the remote command exited zero.
func (r *Result) Ok() bool {
	return r != nil && r.ExitCode == 0
}
