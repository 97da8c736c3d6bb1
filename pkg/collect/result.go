// Package collect downloads a job's located artifacts into a local
// workspace directory and classifies the job outcome from marker files.
//
// Collection is idempotent per (job_id, test_id): the local directory is
// derived from the test id alone, so re-running a collection overwrites
// the same directory deterministically instead of appending. Individual
// file-transfer failures degrade the collection per file; they never abort
// the remaining files or the summary.
package collect

import (
	"time"
)

// Outcome classifies a collected job.
type Outcome string

const (
	// OutcomeSuccess means a success marker was present.
	OutcomeSuccess Outcome = "SUCCESS"

	// OutcomeFailed means an error marker was present.
	OutcomeFailed Outcome = "FAILED"

	// OutcomeInProgress means no marker exists yet - the job has not
	// finished writing its results.
	OutcomeInProgress Outcome = "IN_PROGRESS"

	// OutcomeUnknown means the outcome could not be determined.
	OutcomeUnknown Outcome = "UNKNOWN"
)

// FileResult records the transfer of one manifest entry.
type FileResult struct {
	// Name is the logical file name from the manifest.
	Name string `json:"name"`

	// RemotePath is the source path on the remote host.
	RemotePath string `json:"remote_path"`

	// LocalPath is the destination path, empty when the transfer failed.
	LocalPath string `json:"local_path,omitempty"`

	// Error is the per-file transfer error, empty on success.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of one collection run.
//
// A Result is created once per terminal collection and never mutated
// afterwards. It is persisted to the collection directory in both
// machine-readable (summary.json) and human-readable (summary.txt) form.
type Result struct {
	// JobID is the scheduler-assigned job identifier.
	JobID string `json:"job_id"`

	// TestID is the client-generated correlation id.
	TestID string `json:"test_id"`

	// Outcome classifies the job from its marker files.
	Outcome Outcome `json:"outcome"`

	// CollectedAt is the collection timestamp, recorded for audit.
	CollectedAt time.Time `json:"collected_at"`

	// LocalDir is the collection directory; empty when no artifacts
	// existed yet and no directory was created.
	LocalDir string `json:"local_directory,omitempty"`

	// Details holds the marker file's parsed "key: value" fields.
	Details map[string]string `json:"details,omitempty"`

	// Files lists every attempted transfer, including failed ones.
	Files []FileResult `json:"files,omitempty"`

	// TransferErrors counts files that failed to transfer.
	TransferErrors int `json:"transfer_errors"`

	// PartialErr aggregates per-file transfer errors. It is advisory:
	// partial failure never fails the collection as a whole.
	PartialErr error `json:"-"`
}
