// Package manifest provides loading and validation of gridharvest job manifests.
//
// A job manifest is a YAML or JSON file that configures all aspects of a
// batch run: cluster connection, job submission, result collection, and
// watch behavior.
//
// Manifests are validated against a JSON Schema to ensure correctness before
// execution. The schema enforces strict typing and disallows unknown properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	connection:
//	  host: login.cluster.example.org
//	  user: researcher
//	job:
//	  script: ./run.sh
//	  remote_dir: /home/researcher/jobs
//	results:
//	  dir: /scratch/researcher/results
//	watch:
//	  interval: 30s
package manifest

import "time"

// Manifest represents a validated job manifest.
//
// A manifest configures all aspects of a batch run. Required fields are
// Version, Connection, Job, and Results. Watch, Output, and Archive are
// optional with sensible defaults.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	// Example: "https://schemas.3leaps.dev/gridharvest/v1.0.0/job-manifest.schema.json"
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Connection configures the SSH connection to the cluster login node.
	Connection ConnectionConfig `json:"connection" yaml:"connection"`

	// Job configures the batch job to submit.
	Job JobConfig `json:"job" yaml:"job"`

	// Results configures remote result location and collection filtering.
	Results ResultsConfig `json:"results" yaml:"results"`

	// Watch configures polling behavior (optional).
	Watch WatchConfig `json:"watch,omitempty" yaml:"watch,omitempty"`

	// Output configures the event stream destination (optional).
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`

	// Archive configures optional S3 upload of collected artifacts.
	Archive *ArchiveConfig `json:"archive,omitempty" yaml:"archive,omitempty"`
}

// ConnectionConfig configures the SSH connection to the cluster.
type ConnectionConfig struct {
	// Host is the login node hostname or address.
	Host string `json:"host" yaml:"host"`

	// Port is the SSH port. Default: 22.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// User is the remote username. Defaults to the SSH config/agent identity.
	User string `json:"user,omitempty" yaml:"user,omitempty"`

	// IdentityFile is the path to a private key. When empty the SSH agent
	// is used.
	IdentityFile string `json:"identity_file,omitempty" yaml:"identity_file,omitempty"`

	// KnownHostsFile overrides the known_hosts path used for host key
	// verification. Default: ~/.ssh/known_hosts.
	KnownHostsFile string `json:"known_hosts_file,omitempty" yaml:"known_hosts_file,omitempty"`

	// InsecureIgnoreHostKey disables host key verification. Intended for
	// test clusters only.
	InsecureIgnoreHostKey bool `json:"insecure_ignore_host_key,omitempty" yaml:"insecure_ignore_host_key,omitempty"`

	// ConnectTimeout bounds connection establishment, e.g. "15s".
	ConnectTimeout string `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`

	// CommandTimeout bounds each individual remote command, e.g. "30s".
	CommandTimeout string `json:"command_timeout,omitempty" yaml:"command_timeout,omitempty"`
}

// JobConfig configures the batch job submission.
type JobConfig struct {
	// Name is a human-readable job name. Also used as the scheduler job
	// name when set.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Script is the local path of the batch script to upload and submit.
	Script string `json:"script" yaml:"script"`

	// ScriptArgs are positional arguments passed to the script.
	ScriptArgs []string `json:"script_args,omitempty" yaml:"script_args,omitempty"`

	// RemoteDir is the remote directory the script is uploaded to and
	// submitted from.
	RemoteDir string `json:"remote_dir,omitempty" yaml:"remote_dir,omitempty"`

	// Output is the scheduler output file pattern, e.g. "slurm-%j.out".
	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	// SubmitArgs are extra arguments passed to the submit command verbatim,
	// e.g. ["--partition=gpu", "--time=01:00:00"].
	SubmitArgs []string `json:"submit_args,omitempty" yaml:"submit_args,omitempty"`
}

// ResultsConfig configures remote result location and collection filtering.
type ResultsConfig struct {
	// Dir is the absolute remote directory searched for result files.
	Dir string `json:"dir" yaml:"dir"`

	// Includes is a list of glob patterns for files to collect. Empty
	// means collect everything the job produced.
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`

	// Excludes is a list of glob patterns for files to skip. Optional.
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`

	// NameFilters restricts status-feed rows to jobs whose name contains
	// one of these substrings. Optional.
	NameFilters []string `json:"name_filters,omitempty" yaml:"name_filters,omitempty"`

	// SettleDelay is an extra wait between terminal-state detection and
	// collection, e.g. "10s", giving the remote filesystem time to flush.
	SettleDelay string `json:"settle_delay,omitempty" yaml:"settle_delay,omitempty"`
}

// WatchConfig configures polling behavior.
//
// All fields are optional with sensible defaults applied during loading.
type WatchConfig struct {
	// Interval is the fixed polling interval, e.g. "30s".
	// Default: "30s".
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`

	// MaxConsecutiveFailures bounds transport failures tolerated in a row.
	// Range: 1-100. Default: 5.
	MaxConsecutiveFailures int `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty"`

	// RateLimit is the maximum remote status queries per second
	// (0 = unlimited). Default: 0.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// OutputConfig configures the event stream destination and format.
//
// All fields are optional with sensible defaults applied during loading.
type OutputConfig struct {
	// Destination is the event stream target.
	// Values: "stdout" or "file:/path/to/events.jsonl"
	// Default: "stdout".
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	// Progress enables per-poll status record emission during watch.
	// Default: true.
	Progress *bool `json:"progress,omitempty" yaml:"progress,omitempty"`
}

// ArchiveConfig configures S3 upload of collected artifacts.
type ArchiveConfig struct {
	// Bucket is the destination bucket name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region (e.g., "us-east-1"). Optional.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Prefix is the key prefix under which artifacts are uploaded.
	// Default: "gridharvest/".
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Endpoint is a custom endpoint URL for S3-compatible storage. Optional.
	// Example: "https://s3.wasabisys.com"
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Profile is the AWS credential profile name. Optional.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "1.0"

	// DefaultPort is the default SSH port.
	DefaultPort = 22

	// DefaultConnectTimeout bounds SSH connection establishment.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultCommandTimeout bounds each individual remote command.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultInterval is the default polling interval.
	DefaultInterval = 30 * time.Second

	// DefaultMaxConsecutiveFailures is the default failure tolerance.
	DefaultMaxConsecutiveFailures = 5

	// DefaultRateLimit is the default rate limit (0 = unlimited).
	DefaultRateLimit = 0.0

	// DefaultDestination is the default event stream destination.
	DefaultDestination = "stdout"

	// DefaultProgress is the default value for progress emission.
	DefaultProgress = true

	// DefaultArchivePrefix is the default S3 key prefix.
	DefaultArchivePrefix = "gridharvest/"
)

// ApplyDefaults fills in default values for optional fields.
//
// This should be called after loading and validating the manifest to ensure
// all optional fields have sensible values.
func (m *Manifest) ApplyDefaults() {
	// Connection defaults
	if m.Connection.Port == 0 {
		m.Connection.Port = DefaultPort
	}
	if m.Connection.ConnectTimeout == "" {
		m.Connection.ConnectTimeout = DefaultConnectTimeout.String()
	}
	if m.Connection.CommandTimeout == "" {
		m.Connection.CommandTimeout = DefaultCommandTimeout.String()
	}

	// Watch defaults
	if m.Watch.Interval == "" {
		m.Watch.Interval = DefaultInterval.String()
	}
	if m.Watch.MaxConsecutiveFailures == 0 {
		m.Watch.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	// RateLimit: 0 is a valid value (unlimited), so no default needed

	// Output defaults
	if m.Output.Destination == "" {
		m.Output.Destination = DefaultDestination
	}
	if m.Output.Progress == nil {
		defaultProgress := DefaultProgress
		m.Output.Progress = &defaultProgress
	}

	// Archive defaults
	if m.Archive != nil && m.Archive.Prefix == "" {
		m.Archive.Prefix = DefaultArchivePrefix
	}
}

// ConnectTimeoutDuration returns the parsed connect timeout, falling back
// to the default when unset or unparseable (validation rejects malformed
// values before this point).
func (c *ConnectionConfig) ConnectTimeoutDuration() time.Duration {
	return parseDurationOr(c.ConnectTimeout, DefaultConnectTimeout)
}

// CommandTimeoutDuration returns the parsed per-command timeout.
func (c *ConnectionConfig) CommandTimeoutDuration() time.Duration {
	return parseDurationOr(c.CommandTimeout, DefaultCommandTimeout)
}

// IntervalDuration returns the parsed polling interval.
func (w *WatchConfig) IntervalDuration() time.Duration {
	return parseDurationOr(w.Interval, DefaultInterval)
}

// SettleDelayDuration returns the parsed settle delay, zero when unset.
func (r *ResultsConfig) SettleDelayDuration() time.Duration {
	return parseDurationOr(r.SettleDelay, 0)
}

// ProgressEnabled returns whether per-poll status records should be emitted.
// Returns the configured value, or DefaultProgress if not set.
func (o *OutputConfig) ProgressEnabled() bool {
	if o.Progress == nil {
		return DefaultProgress
	}
	return *o.Progress
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
