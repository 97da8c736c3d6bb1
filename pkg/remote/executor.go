package remote

import (
	"context"
	"time"
)

// DefaultCommandTimeout bounds a single remote invocation when the caller
// does not configure one.
const DefaultCommandTimeout = 30 * time.Second

// Executor runs remote commands with a hard per-invocation timeout.
//
// The Executor never panics across its boundary and never retries: a
// failed or timed-out invocation is reported once and the caller decides
// whether its own schedule provides the retry (the monitor's polling loop
// does). The Executor is stateless beyond the Session it wraps.
type Executor struct {
	session Session
	timeout time.Duration
}

// NewExecutor wraps a session with the given command timeout.
// A non-positive timeout falls back to DefaultCommandTimeout.
func NewExecutor(session Session, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Executor{session: session, timeout: timeout}
}

// Timeout returns the configured per-command timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs a command on the remote host, bounded by the executor's
// timeout. On expiry it returns ErrTimeout without waiting for the
// command's natural runtime; the in-flight call is abandoned to finish in
// the background (it is the transport's job to tear it down).
func (e *Executor) Execute(ctx context.Context, command string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		res, err := e.session.Run(ctx, command)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &CommandError{Op: "Execute", Command: command, Err: ErrTimeout}
		}
		return nil, &CommandError{Op: "Execute", Command: command, Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			return nil, wrapTransport("Execute", command, out.err)
		}
		return out.res, nil
	}
}

// FetchFile copies a remote file to a local path, bounded by the
// executor's timeout.
func (e *Executor) FetchFile(ctx context.Context, remotePath, localPath string) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.session.Fetch(ctx, remotePath, localPath)
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return &CommandError{Op: "Fetch", Command: remotePath, Err: ErrTimeout}
		}
		return &CommandError{Op: "Fetch", Command: remotePath, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return wrapTransport("Fetch", remotePath, err)
		}
		return nil
	}
}

// PutFile copies a local file to a remote path, bounded by the executor's
// timeout.
func (e *Executor) PutFile(ctx context.Context, localPath, remotePath string) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.session.Put(ctx, localPath, remotePath)
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return &CommandError{Op: "Put", Command: remotePath, Err: ErrTimeout}
		}
		return &CommandError{Op: "Put", Command: remotePath, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return wrapTransport("Put", remotePath, err)
		}
		return nil
	}
}

// wrapTransport classifies a session error. Errors already carrying a
// sentinel pass through wrapped; everything else is a transport failure.
func wrapTransport(op, command string, err error) error {
	if IsTimeout(err) || IsTransport(err) {
		return &CommandError{Op: op, Command: command, Err: err}
	}
	return &CommandError{Op: op, Command: command, Err: joinTransport(err)}
}

type transportError struct{ err error }

func (t *transportError) Error() string { return t.err.Error() }

func (t *transportError) Unwrap() []error { return []error{ErrTransport, t.err} }

// joinTransport tags err with ErrTransport while preserving the original
// chain for errors.Is/As.
func joinTransport(err error) error {
	return &transportError{err: err}
}
