package jobregistry

import "time"

// SubmissionState is the locally tracked lifecycle state of a submission.
//
// NOTE: These values are persisted in submission.json and are part of the
// stable on-disk contract.
type SubmissionState string

const (
	SubmissionStateSubmitted SubmissionState = "submitted"
	SubmissionStateRunning   SubmissionState = "running"
	SubmissionStateCompleted SubmissionState = "completed"
	SubmissionStateFailed    SubmissionState = "failed"
	SubmissionStateCancelled SubmissionState = "cancelled"
	SubmissionStateUnknown   SubmissionState = "unknown"
)

// RemoteTarget is a minimal connection summary captured for operator clarity.
//
// This is intentionally shallow and string-only so the registry stays stable
// even if deeper connection schemas evolve.
type RemoteTarget struct {
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
	User string `json:"user,omitempty"`
}

// SubmissionRecord is the persistent record written to submission.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type SubmissionRecord struct {
	TestID     string          `json:"test_id"`
	JobID      string          `json:"job_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	State      SubmissionState `json:"state"`
	Script     string          `json:"script"`
	ScriptArgs []string        `json:"script_args,omitempty"`
	WorkDir    string          `json:"work_dir,omitempty"`
	ResultsDir string          `json:"results_dir,omitempty"`
	Target     *RemoteTarget   `json:"target,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`

	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
	Outcome      string     `json:"outcome,omitempty"`
	LocalDir     string     `json:"local_dir,omitempty"`
}
