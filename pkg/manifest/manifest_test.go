package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validManifestYAML returns a minimal valid manifest in YAML format.
func validManifestYAML() string {
	return `version: "1.0"
connection:
  host: login.cluster.example.org
job:
  script: ./run.sh
results:
  dir: /scratch/results
`
}

// validManifestJSON returns a minimal valid manifest in JSON format.
func validManifestJSON() string {
	return `{
  "version": "1.0",
  "connection": {
    "host": "login.cluster.example.org"
  },
  "job": {
    "script": "./run.sh"
  },
  "results": {
    "dir": "/scratch/results"
  }
}`
}

// manifestWithSchemaYAML returns a manifest with the $schema field for editor support.
func manifestWithSchemaYAML() string {
	return `$schema: https://schemas.3leaps.dev/gridharvest/v1.0.0/job-manifest.schema.json
version: "1.0"
connection:
  host: login.cluster.example.org
job:
  script: ./run.sh
results:
  dir: /scratch/results
`
}

// fullManifestYAML returns a complete manifest with all optional fields.
func fullManifestYAML() string {
	return `version: "1.0"
connection:
  host: login.cluster.example.org
  port: 2222
  user: researcher
  identity_file: /home/researcher/.ssh/id_ed25519
  known_hosts_file: /home/researcher/.ssh/known_hosts
  connect_timeout: 10s
  command_timeout: 45s
job:
  name: simple_test
  script: ./run.sh
  script_args: ["--n", "2"]
  remote_dir: /home/researcher/jobs
  output: slurm-%j.out
  submit_args: ["--partition=gpu", "--time=01:00:00"]
results:
  dir: /scratch/researcher/results
  includes:
    - "**/*.dat"
    - "**/*.log"
  excludes:
    - "**/tmp/**"
  name_filters:
    - simple
  settle_delay: 10s
watch:
  interval: 15s
  max_consecutive_failures: 3
  rate_limit: 2.5
output:
  destination: file:/tmp/events.jsonl
  progress: false
archive:
  bucket: my-results-bucket
  region: us-east-1
  prefix: runs/
  profile: production
`
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		filename    string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, m *Manifest)
	}{
		{
			name:     "valid YAML manifest",
			content:  validManifestYAML(),
			filename: "manifest.yaml",
			wantErr:  false,
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "1.0", m.Version)
				assert.Equal(t, "login.cluster.example.org", m.Connection.Host)
				assert.Equal(t, "./run.sh", m.Job.Script)
				assert.Equal(t, "/scratch/results", m.Results.Dir)
				// Check defaults were applied
				assert.Equal(t, DefaultPort, m.Connection.Port)
				assert.Equal(t, DefaultConnectTimeout, m.Connection.ConnectTimeoutDuration())
				assert.Equal(t, DefaultCommandTimeout, m.Connection.CommandTimeoutDuration())
				assert.Equal(t, DefaultInterval, m.Watch.IntervalDuration())
				assert.Equal(t, DefaultMaxConsecutiveFailures, m.Watch.MaxConsecutiveFailures)
				assert.Equal(t, DefaultDestination, m.Output.Destination)
				assert.True(t, m.Output.ProgressEnabled())
			},
		},
		{
			name:     "valid JSON manifest",
			content:  validManifestJSON(),
			filename: "manifest.json",
			wantErr:  false,
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "1.0", m.Version)
				assert.Equal(t, "login.cluster.example.org", m.Connection.Host)
				assert.Equal(t, "./run.sh", m.Job.Script)
			},
		},
		{
			name:     "manifest with $schema field",
			content:  manifestWithSchemaYAML(),
			filename: "with-schema.yaml",
			wantErr:  false,
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "https://schemas.3leaps.dev/gridharvest/v1.0.0/job-manifest.schema.json", m.Schema)
				assert.Equal(t, "1.0", m.Version)
			},
		},
		{
			name:     "full manifest with all options",
			content:  fullManifestYAML(),
			filename: "full.yaml",
			wantErr:  false,
			validate: func(t *testing.T, m *Manifest) {
				// Connection
				assert.Equal(t, 2222, m.Connection.Port)
				assert.Equal(t, "researcher", m.Connection.User)
				assert.Equal(t, 10*time.Second, m.Connection.ConnectTimeoutDuration())
				assert.Equal(t, 45*time.Second, m.Connection.CommandTimeoutDuration())
				// Job
				assert.Equal(t, "simple_test", m.Job.Name)
				assert.Equal(t, []string{"--n", "2"}, m.Job.ScriptArgs)
				assert.Equal(t, "/home/researcher/jobs", m.Job.RemoteDir)
				assert.Equal(t, []string{"--partition=gpu", "--time=01:00:00"}, m.Job.SubmitArgs)
				// Results
				assert.Equal(t, []string{"**/*.dat", "**/*.log"}, m.Results.Includes)
				assert.Equal(t, []string{"**/tmp/**"}, m.Results.Excludes)
				assert.Equal(t, []string{"simple"}, m.Results.NameFilters)
				assert.Equal(t, 10*time.Second, m.Results.SettleDelayDuration())
				// Watch
				assert.Equal(t, 15*time.Second, m.Watch.IntervalDuration())
				assert.Equal(t, 3, m.Watch.MaxConsecutiveFailures)
				assert.InDelta(t, 2.5, m.Watch.RateLimit, 0.001)
				// Output
				assert.Equal(t, "file:/tmp/events.jsonl", m.Output.Destination)
				assert.False(t, m.Output.ProgressEnabled())
				// Archive
				require.NotNil(t, m.Archive)
				assert.Equal(t, "my-results-bucket", m.Archive.Bucket)
				assert.Equal(t, "runs/", m.Archive.Prefix)
			},
		},
		{
			name:     "yml extension works",
			content:  validManifestYAML(),
			filename: "manifest.yml",
			wantErr:  false,
		},
		{
			name:        "empty file",
			content:     "",
			filename:    "empty.yaml",
			wantErr:     true,
			errContains: "empty",
		},
		{
			name:        "invalid YAML syntax",
			content:     "version: [invalid yaml",
			filename:    "bad.yaml",
			wantErr:     true,
			errContains: "invalid YAML",
		},
		{
			name:        "invalid JSON syntax",
			content:     `{"version": "1.0"`,
			filename:    "bad.json",
			wantErr:     true,
			errContains: "invalid JSON",
		},
		{
			name: "missing version",
			content: `connection:
  host: login.example.org
job:
  script: ./run.sh
results:
  dir: /scratch/results
`,
			filename:    "no-version.yaml",
			wantErr:     true,
			errContains: "version",
		},
		{
			name: "wrong version",
			content: `version: "2.0"
connection:
  host: login.example.org
job:
  script: ./run.sh
results:
  dir: /scratch/results
`,
			filename:    "wrong-version.yaml",
			wantErr:     true,
			errContains: "version",
		},
		{
			name: "missing connection",
			content: `version: "1.0"
job:
  script: ./run.sh
results:
  dir: /scratch/results
`,
			filename:    "no-connection.yaml",
			wantErr:     true,
			errContains: "connection",
		},
		{
			name: "missing host",
			content: `version: "1.0"
connection:
  user: researcher
job:
  script: ./run.sh
results:
  dir: /scratch/results
`,
			filename:    "no-host.yaml",
			wantErr:     true,
			errContains: "host",
		},
		{
			name: "missing script",
			content: `version: "1.0"
connection:
  host: login.example.org
job:
  name: demo
results:
  dir: /scratch/results
`,
			filename:    "no-script.yaml",
			wantErr:     true,
			errContains: "script",
		},
		{
			name: "relative results dir",
			content: `version: "1.0"
connection:
  host: login.example.org
job:
  script: ./run.sh
results:
  dir: scratch/results
`,
			filename:    "relative-dir.yaml",
			wantErr:     true,
			errContains: "dir",
		},
		{
			name: "malformed interval",
			content: `version: "1.0"
connection:
  host: login.example.org
job:
  script: ./run.sh
results:
  dir: /scratch/results
watch:
  interval: thirty seconds
`,
			filename:    "bad-interval.yaml",
			wantErr:     true,
			errContains: "interval",
		},
		{
			name: "max failures out of range",
			content: `version: "1.0"
connection:
  host: login.example.org
job:
  script: ./run.sh
results:
  dir: /scratch/results
watch:
  max_consecutive_failures: 0
`,
			filename:    "zero-failures.yaml",
			wantErr:     true,
			errContains: "max_consecutive_failures",
		},
		{
			name: "negative rate limit",
			content: `version: "1.0"
connection:
  host: login.example.org
job:
  script: ./run.sh
results:
  dir: /scratch/results
watch:
  rate_limit: -1
`,
			filename:    "neg-rate.yaml",
			wantErr:     true,
			errContains: "rate_limit",
		},
		{
			name: "archive without bucket",
			content: `version: "1.0"
connection:
  host: login.example.org
job:
  script: ./run.sh
results:
  dir: /scratch/results
archive:
  region: us-east-1
`,
			filename:    "no-bucket.yaml",
			wantErr:     true,
			errContains: "bucket",
		},
		{
			name: "unknown field rejected",
			content: `version: "1.0"
connection:
  host: login.example.org
  unknown_field: value
job:
  script: ./run.sh
results:
  dir: /scratch/results
`,
			filename:    "unknown-field.yaml",
			wantErr:     true,
			errContains: "additional",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create temp file
			tmpDir := t.TempDir()
			path := filepath.Join(tmpDir, tt.filename)
			err := os.WriteFile(path, []byte(tt.content), 0o644)
			require.NoError(t, err)

			// Load manifest
			m, err := Load(path)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, strings.ToLower(err.Error()), strings.ToLower(tt.errContains),
						"error should contain %q", tt.errContains)
				}
				return
			}

			require.NoError(t, err)
			require.NotNil(t, m)

			if tt.validate != nil {
				tt.validate(t, m)
			}
		})
	}
}

func TestLoad_FileErrors(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		_, err := Load("/nonexistent/path/manifest.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("permission denied", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("skipping permission test when running as root")
		}

		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "noperm.yaml")
		err := os.WriteFile(path, []byte(validManifestYAML()), 0o000)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = os.Chmod(path, 0o644) // Restore permissions for cleanup
		})

		_, err = Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permission")
	})
}

func TestLoadFromBytes(t *testing.T) {
	t.Run("YAML by extension", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestYAML()), "test.yaml")
		require.NoError(t, err)
		assert.Equal(t, "login.cluster.example.org", m.Connection.Host)
	})

	t.Run("JSON by extension", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestJSON()), "test.json")
		require.NoError(t, err)
		assert.Equal(t, "login.cluster.example.org", m.Connection.Host)
	})

	t.Run("auto-detect YAML", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestYAML()), "")
		require.NoError(t, err)
		assert.Equal(t, "login.cluster.example.org", m.Connection.Host)
	})

	t.Run("auto-detect JSON", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestJSON()), "")
		require.NoError(t, err)
		assert.Equal(t, "login.cluster.example.org", m.Connection.Host)
	})

	t.Run("unknown extension tries both", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestYAML()), "test.txt")
		require.NoError(t, err)
		assert.Equal(t, "login.cluster.example.org", m.Connection.Host)
	})
}

func TestLoadFromReader(t *testing.T) {
	t.Run("reads from reader", func(t *testing.T) {
		r := strings.NewReader(validManifestYAML())
		m, err := LoadFromReader(r, "test.yaml")
		require.NoError(t, err)
		assert.Equal(t, "login.cluster.example.org", m.Connection.Host)
	})
}

func TestApplyDefaults(t *testing.T) {
	t.Run("applies all defaults", func(t *testing.T) {
		m := &Manifest{
			Version: "1.0",
			Connection: ConnectionConfig{
				Host: "login.example.org",
			},
			Job: JobConfig{
				Script: "./run.sh",
			},
			Results: ResultsConfig{
				Dir: "/scratch/results",
			},
		}

		m.ApplyDefaults()

		assert.Equal(t, DefaultPort, m.Connection.Port)
		assert.Equal(t, DefaultConnectTimeout.String(), m.Connection.ConnectTimeout)
		assert.Equal(t, DefaultInterval.String(), m.Watch.Interval)
		assert.Equal(t, DefaultMaxConsecutiveFailures, m.Watch.MaxConsecutiveFailures)
		assert.Equal(t, DefaultDestination, m.Output.Destination)
		assert.NotNil(t, m.Output.Progress)
		assert.True(t, *m.Output.Progress)
	})

	t.Run("preserves explicit values", func(t *testing.T) {
		progress := false
		m := &Manifest{
			Version: "1.0",
			Connection: ConnectionConfig{
				Host: "login.example.org",
				Port: 2222,
			},
			Watch: WatchConfig{
				Interval:               "15s",
				MaxConsecutiveFailures: 3,
			},
			Output: OutputConfig{
				Destination: "file:/tmp/events.jsonl",
				Progress:    &progress,
			},
		}

		m.ApplyDefaults()

		assert.Equal(t, 2222, m.Connection.Port)
		assert.Equal(t, "15s", m.Watch.Interval)
		assert.Equal(t, 3, m.Watch.MaxConsecutiveFailures)
		assert.Equal(t, "file:/tmp/events.jsonl", m.Output.Destination)
		assert.False(t, *m.Output.Progress)
	})

	t.Run("zero rate limit is valid", func(t *testing.T) {
		m := &Manifest{
			Watch: WatchConfig{
				RateLimit: 0, // Explicitly unlimited
			},
		}

		m.ApplyDefaults()

		// RateLimit should remain 0 (not defaulted to something else)
		assert.Equal(t, 0.0, m.Watch.RateLimit)
	})

	t.Run("archive prefix default", func(t *testing.T) {
		m := &Manifest{
			Archive: &ArchiveConfig{Bucket: "b"},
		}
		m.ApplyDefaults()
		assert.Equal(t, DefaultArchivePrefix, m.Archive.Prefix)
	})
}

func TestProgressEnabled(t *testing.T) {
	t.Run("nil returns default true", func(t *testing.T) {
		o := OutputConfig{}
		assert.True(t, o.ProgressEnabled())
	})

	t.Run("explicit true", func(t *testing.T) {
		v := true
		o := OutputConfig{Progress: &v}
		assert.True(t, o.ProgressEnabled())
	})

	t.Run("explicit false", func(t *testing.T) {
		v := false
		o := OutputConfig{Progress: &v}
		assert.False(t, o.ProgressEnabled())
	})
}

func TestValidationErrors(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Path: "/version", Message: "required"},
		}
		assert.Contains(t, errs.Error(), "/version")
		assert.Contains(t, errs.Error(), "required")
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Path: "/version", Message: "required"},
			{Path: "/connection/host", Message: "must not be empty"},
		}
		errStr := errs.Error()
		assert.Contains(t, errStr, "2 errors")
		assert.Contains(t, errStr, "/version")
		assert.Contains(t, errStr, "/connection/host")
	})

	t.Run("empty path", func(t *testing.T) {
		errs := ValidationErrors{
			{Path: "", Message: "root error"},
		}
		assert.Equal(t, "root error", errs.Error())
	})

	t.Run("unwrap returns ErrValidationFailed", func(t *testing.T) {
		errs := ValidationErrors{{Path: "/x", Message: "bad"}}
		assert.True(t, errors.Is(errs, ErrValidationFailed))
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid manifest passes", func(t *testing.T) {
		m := &Manifest{
			Version: "1.0",
			Connection: ConnectionConfig{
				Host: "login.cluster.example.org",
			},
			Job: JobConfig{
				Script: "./run.sh",
			},
			Results: ResultsConfig{
				Dir: "/scratch/results",
			},
		}
		err := Validate(m)
		assert.NoError(t, err)
	})

	t.Run("invalid manifest fails", func(t *testing.T) {
		m := &Manifest{
			Version: "1.0",
			Connection: ConnectionConfig{
				Host: "login.cluster.example.org",
			},
			Job: JobConfig{
				Script: "./run.sh",
			},
			Results: ResultsConfig{
				Dir: "relative/path",
			},
		}
		err := Validate(m)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidationFailed))
	})
}

func TestValidationError_Error(t *testing.T) {
	t.Run("with path", func(t *testing.T) {
		e := ValidationError{Path: "/foo/bar", Message: "invalid"}
		assert.Equal(t, "/foo/bar: invalid", e.Error())
	})

	t.Run("without path", func(t *testing.T) {
		e := ValidationError{Path: "", Message: "something wrong"}
		assert.Equal(t, "something wrong", e.Error())
	})
}

func TestValidate_EmbeddedSchema(t *testing.T) {
	// This test verifies that validation works from any directory,
	// proving the embedded schema is being used (not disk-based lookup).
	t.Run("works from arbitrary directory", func(t *testing.T) {
		originalDir, err := os.Getwd()
		require.NoError(t, err)

		tmpDir := t.TempDir()
		err = os.Chdir(tmpDir)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = os.Chdir(originalDir)
		})

		m := &Manifest{
			Version: "1.0",
			Connection: ConnectionConfig{
				Host: "login.cluster.example.org",
			},
			Job: JobConfig{
				Script: "./run.sh",
			},
			Results: ResultsConfig{
				Dir: "/scratch/results",
			},
		}
		err = Validate(m)
		assert.NoError(t, err, "validation should work from any directory using embedded schema")
	})
}
