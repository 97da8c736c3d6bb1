package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors for remote operations.
var (
	// ErrTimeout indicates a command exceeded its wall-clock bound.
	ErrTimeout = errors.New("command timed out")

	// ErrTransport indicates a transport-level failure (connection refused,
	// DNS, auth, dropped connection).
	ErrTransport = errors.New("transport failure")

	// ErrSessionClosed is returned when using a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

// CommandError wraps remote command failures with context.
type CommandError struct {
	// Op is the operation that failed (e.g., "Run", "Fetch").
	Op string

	// Command is the remote command or path involved.
	Command string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("remote %s: %s: %v", e.Op, e.Command, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error indicates a command timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsTransport returns true if the error indicates a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
