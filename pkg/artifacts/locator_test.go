package artifacts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gridharvest/pkg/remote"
)

// fakeRunner scripts Execute responses keyed by nothing - every call
// returns the same result, which is all the locator needs.
type fakeRunner struct {
	result *remote.Result
	err    error

	lastCommand string
}

func (f *fakeRunner) Execute(ctx context.Context, command string) (*remote.Result, error) {
	f.lastCommand = command
	return f.result, f.err
}

func TestNewLocator(t *testing.T) {
	t.Run("requires absolute root", func(t *testing.T) {
		_, err := NewLocator(&fakeRunner{}, "results/tree")
		require.Error(t, err)
	})

	t.Run("requires non-empty root", func(t *testing.T) {
		_, err := NewLocator(&fakeRunner{}, "  ")
		require.Error(t, err)
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		l, err := NewLocator(&fakeRunner{}, "/scratch/results/")
		require.NoError(t, err)
		assert.Equal(t, "/scratch/results", l.Root())
	})
}

func TestLocator_Locate(t *testing.T) {
	ctx := context.Background()

	t.Run("empty result tree yields empty manifest", func(t *testing.T) {
		runner := &fakeRunner{result: &remote.Result{ExitCode: 0, Stdout: ""}}
		l, err := NewLocator(runner, "/scratch/results")
		require.NoError(t, err)

		m, err := l.Locate(ctx, "59774392")
		require.NoError(t, err)
		assert.Empty(t, m)
		assert.Contains(t, runner.lastCommand, "find /scratch/results")
		assert.Contains(t, runner.lastCommand, "'*59774392*'")
	})

	t.Run("search pattern stays quoted for hostile ids", func(t *testing.T) {
		// Force-collect accepts operator-supplied ids, not just digits
		// from the submission output.
		runner := &fakeRunner{result: &remote.Result{ExitCode: 0, Stdout: ""}}
		l, err := NewLocator(runner, "/scratch/results")
		require.NoError(t, err)

		_, err = l.Locate(ctx, "42'; rm -rf /; echo '")
		require.NoError(t, err)
		assert.Contains(t, runner.lastCommand, `'*42'\''; rm -rf /; echo '\''*'`)
	})

	t.Run("failed search command is treated as no results", func(t *testing.T) {
		runner := &fakeRunner{result: &remote.Result{ExitCode: 1, Stderr: "Permission denied"}}
		l, err := NewLocator(runner, "/scratch/results")
		require.NoError(t, err)

		m, err := l.Locate(ctx, "59774392")
		require.NoError(t, err)
		assert.Empty(t, m)
	})

	t.Run("transport failure propagates", func(t *testing.T) {
		runner := &fakeRunner{err: &remote.CommandError{Op: "Execute", Err: remote.ErrTransport}}
		l, err := NewLocator(runner, "/scratch/results")
		require.NoError(t, err)

		_, err = l.Locate(ctx, "59774392")
		require.Error(t, err)
		assert.True(t, remote.IsTransport(err))
	})

	t.Run("maps base names to remote paths", func(t *testing.T) {
		runner := &fakeRunner{result: &remote.Result{Stdout: "/scratch/results/run_59774392/metrics.csv\n/scratch/results/run_59774392/out_success.txt\n"}}
		l, err := NewLocator(runner, "/scratch/results")
		require.NoError(t, err)

		m, err := l.Locate(ctx, "59774392")
		require.NoError(t, err)
		assert.Equal(t, Manifest{
			"metrics.csv":     "/scratch/results/run_59774392/metrics.csv",
			"out_success.txt": "/scratch/results/run_59774392/out_success.txt",
		}, m)
	})

	t.Run("base name collisions are qualified by parent dir", func(t *testing.T) {
		runner := &fakeRunner{result: &remote.Result{Stdout: "/r/59774392/a/log.txt\n/r/59774392/b/log.txt\n"}}
		l, err := NewLocator(runner, "/r")
		require.NoError(t, err)

		m, err := l.Locate(ctx, "59774392")
		require.NoError(t, err)
		require.Len(t, m, 2)
		assert.Equal(t, "/r/59774392/a/log.txt", m["log.txt"])
		assert.Equal(t, "/r/59774392/b/log.txt", m["b/log.txt"])
	})

	t.Run("blank and relative lines are skipped", func(t *testing.T) {
		runner := &fakeRunner{result: &remote.Result{Stdout: "\n  \nnot-absolute\n/r/59774392/ok.dat\n"}}
		l, err := NewLocator(runner, "/r")
		require.NoError(t, err)

		m, err := l.Locate(ctx, "59774392")
		require.NoError(t, err)
		assert.Equal(t, Manifest{"ok.dat": "/r/59774392/ok.dat"}, m)
	})

	t.Run("matcher narrows results", func(t *testing.T) {
		runner := &fakeRunner{result: &remote.Result{Stdout: "/r/59774392/metrics.csv\n/r/59774392/core.dump\n"}}
		matcher, err := NewPathMatcher(nil, []string{"**/*.dump"})
		require.NoError(t, err)

		l, err := NewLocator(runner, "/r")
		require.NoError(t, err)
		l.WithMatcher(matcher)

		m, err := l.Locate(ctx, "59774392")
		require.NoError(t, err)
		assert.Equal(t, Manifest{"metrics.csv": "/r/59774392/metrics.csv"}, m)
	})

	t.Run("empty job id is rejected before any remote call", func(t *testing.T) {
		runner := &fakeRunner{result: &remote.Result{}}
		l, err := NewLocator(runner, "/r")
		require.NoError(t, err)

		_, err = l.Locate(ctx, "  ")
		require.Error(t, err)
		assert.Empty(t, runner.lastCommand)
	})
}

func TestPathMatcher(t *testing.T) {
	tests := []struct {
		name     string
		includes []string
		excludes []string
		path     string
		want     bool
	}{
		{"no patterns match all", nil, nil, "run/out.dat", true},
		{"include match", []string{"**/*.csv"}, nil, "run/metrics.csv", true},
		{"include miss", []string{"**/*.csv"}, nil, "run/out.dat", false},
		{"exclude wins", []string{"**"}, []string{"**/*.tmp"}, "run/x.tmp", false},
		{"leading slash normalized", []string{"run/**"}, nil, "/run/out.dat", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewPathMatcher(tt.includes, tt.excludes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.path))
		})
	}

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := NewPathMatcher([]string{"[invalid"}, nil)
		require.Error(t, err)
		var perr *PatternError
		assert.True(t, errors.As(err, &perr))
	})
}

func TestManifest_Markers(t *testing.T) {
	m := Manifest{
		"metrics.csv":      "/r/1/metrics.csv",
		"run_success.flag": "/r/1/run_success.flag",
		"run_error.flag":   "/r/1/run_error.flag",
	}

	name, path, ok := m.SuccessMarker()
	require.True(t, ok)
	assert.Equal(t, "run_success.flag", name)
	assert.Equal(t, "/r/1/run_success.flag", path)

	name, _, ok = m.ErrorMarker()
	require.True(t, ok)
	assert.Equal(t, "run_error.flag", name)

	empty := Manifest{"out.dat": "/r/1/out.dat"}
	_, _, ok = empty.SuccessMarker()
	assert.False(t, ok)
}

func TestParseMarker(t *testing.T) {
	content := "status: ok\nwall_time: 00:02:15\n\nnot a pair\n  iterations :  500  \n: novalue\n"
	details := ParseMarker(content)
	assert.Equal(t, map[string]string{
		"status":     "ok",
		"wall_time":  "00:02:15",
		"iterations": "500",
	}, details)
}
