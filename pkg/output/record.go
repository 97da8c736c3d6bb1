// Package output provides JSONL output for job monitoring events.
//
// Output is structured as typed record envelopes containing submissions,
// status snapshots, errors, and collection summaries. Each line is a
// self-contained JSON object that can be parsed independently by
// downstream tooling.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: gridharvest.<type>.v<version>
const (
	// TypeSubmit identifies job submission records.
	TypeSubmit = "gridharvest.submit.v1"

	// TypeStatus identifies status snapshot records.
	TypeStatus = "gridharvest.status.v1"

	// TypeError identifies error records.
	TypeError = "gridharvest.error.v1"

	// TypeCollection identifies collection summary records.
	TypeCollection = "gridharvest.collection.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field.
type Record struct {
	// Type identifies the record type (e.g., "gridharvest.status.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// TestID is the client-generated correlation id for the submission.
	TestID string `json:"test_id"`

	// JobID is the scheduler-assigned job id, empty before submission.
	JobID string `json:"job_id,omitempty"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// SubmitRecord is the data payload for job submissions.
type SubmitRecord struct {
	// Host is the remote scheduler host.
	Host string `json:"host"`

	// Script is the remote path of the submitted job script.
	Script string `json:"script"`

	// Name is the job's display name.
	Name string `json:"name,omitempty"`

	// RawOutput is the scheduler's submission response, kept for audit.
	RawOutput string `json:"raw_output,omitempty"`
}

// StatusRecord is the data payload for one status snapshot.
type StatusRecord struct {
	// State is the mapped scheduler state.
	State string `json:"state"`

	// Elapsed is the scheduler's elapsed-time string.
	Elapsed string `json:"elapsed,omitempty"`

	// Nodes is the allocated node count.
	Nodes int `json:"nodes,omitempty"`

	// Reason is the scheduler's wait reason, if any.
	Reason string `json:"reason,omitempty"`

	// InQueue is false when the job was absent from the status feed.
	InQueue bool `json:"in_queue"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the watch, allowing
// the polling loop to continue across transient transport faults.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Consecutive is the consecutive-failure count at emission time.
	Consecutive int `json:"consecutive,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeTransport indicates a transport-level failure.
	ErrCodeTransport = "TRANSPORT"

	// ErrCodeTimeout indicates a remote command timed out.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// CollectionRecord is the data payload for collection summaries.
type CollectionRecord struct {
	// Outcome is the classified job outcome.
	Outcome string `json:"outcome"`

	// LocalDir is the collection directory, empty when none was created.
	LocalDir string `json:"local_directory,omitempty"`

	// Files lists the logical names of collected artifacts.
	Files []string `json:"files,omitempty"`

	// TransferErrors counts files that failed to transfer.
	TransferErrors int `json:"transfer_errors,omitempty"`

	// Details holds the marker file's parsed fields.
	Details map[string]string `json:"details,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
