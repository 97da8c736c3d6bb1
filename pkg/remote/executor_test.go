package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession scripts Session behavior for executor tests.
type fakeSession struct {
	result *Result
	err    error
	delay  time.Duration

	fetchErr error
	putErr   error
}

func (f *fakeSession) Run(ctx context.Context, command string) (*Result, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeSession) Fetch(ctx context.Context, remotePath, localPath string) error {
	return f.fetchErr
}

func (f *fakeSession) Put(ctx context.Context, localPath, remotePath string) error {
	return f.putErr
}

func (f *fakeSession) Close() error { return nil }

func TestExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("success passes through result", func(t *testing.T) {
		sess := &fakeSession{result: &Result{ExitCode: 0, Stdout: "ok\n"}}
		e := NewExecutor(sess, time.Second)

		res, err := e.Execute(ctx, "echo ok")
		require.NoError(t, err)
		assert.Equal(t, "ok\n", res.Stdout)
		assert.True(t, res.Ok())
	})

	t.Run("non-zero exit is not an error", func(t *testing.T) {
		sess := &fakeSession{result: &Result{ExitCode: 2, Stderr: "no such file\n"}}
		e := NewExecutor(sess, time.Second)

		res, err := e.Execute(ctx, "ls /nope")
		require.NoError(t, err)
		assert.Equal(t, 2, res.ExitCode)
		assert.False(t, res.Ok())
	})

	t.Run("timeout returns within the bound", func(t *testing.T) {
		// Session would naturally take far longer than the timeout.
		sess := &fakeSession{delay: 5 * time.Second, result: &Result{}}
		e := NewExecutor(sess, 50*time.Millisecond)

		start := time.Now()
		_, err := e.Execute(ctx, "sleep 300")
		elapsed := time.Since(start)

		require.Error(t, err)
		assert.True(t, IsTimeout(err), "expected timeout, got %v", err)
		assert.Less(t, elapsed, time.Second, "executor must not wait for the command's natural runtime")

		var cmdErr *CommandError
		require.True(t, errors.As(err, &cmdErr))
		assert.Equal(t, "Execute", cmdErr.Op)
	})

	t.Run("transport faults are classified", func(t *testing.T) {
		sess := &fakeSession{err: errors.New("connection reset by peer")}
		e := NewExecutor(sess, time.Second)

		_, err := e.Execute(ctx, "squeue")
		require.Error(t, err)
		assert.True(t, IsTransport(err))
		assert.False(t, IsTimeout(err))
	})

	t.Run("already tagged errors keep their sentinel", func(t *testing.T) {
		sess := &fakeSession{err: joinTransport(errors.New("dial tcp: refused"))}
		e := NewExecutor(sess, time.Second)

		_, err := e.Execute(ctx, "squeue")
		require.Error(t, err)
		assert.True(t, IsTransport(err))
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		sess := &fakeSession{delay: time.Second, result: &Result{}}
		e := NewExecutor(sess, 10*time.Second)

		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := e.Execute(cctx, "squeue")
		require.Error(t, err)
		assert.False(t, IsTimeout(err))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExecutor_FetchFile(t *testing.T) {
	ctx := context.Background()

	t.Run("fetch failure is transport", func(t *testing.T) {
		sess := &fakeSession{fetchErr: errors.New("sftp: connection lost")}
		e := NewExecutor(sess, time.Second)

		err := e.FetchFile(ctx, "/remote/out.dat", "/tmp/out.dat")
		require.Error(t, err)
		assert.True(t, IsTransport(err))
	})

	t.Run("fetch success", func(t *testing.T) {
		sess := &fakeSession{}
		e := NewExecutor(sess, time.Second)
		assert.NoError(t, e.FetchFile(ctx, "/remote/out.dat", "/tmp/out.dat"))
	})
}

func TestNewExecutor_DefaultTimeout(t *testing.T) {
	e := NewExecutor(&fakeSession{}, 0)
	assert.Equal(t, DefaultCommandTimeout, e.Timeout())
}
