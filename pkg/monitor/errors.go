package monitor

import (
	"fmt"

	"github.com/3leaps/gridharvest/pkg/scheduler"
)

// FatalError is returned when the watch loop gives up on a dead transport.
//
// It carries the last successfully retrieved status snapshot so the caller
// never loses partial progress; LastSnapshot is nil when no poll ever
// succeeded.
type FatalError struct {
	// JobID is the monitored scheduler job.
	JobID string

	// ConsecutiveFailures is the failure count that tripped the limit.
	ConsecutiveFailures int

	// LastSnapshot is the most recent successful status observation,
	// nil if none existed.
	LastSnapshot *scheduler.StatusRecord

	// Err is the final underlying failure.
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.LastSnapshot != nil {
		return fmt.Sprintf("job %s: %d consecutive poll failures (last seen %s): %v",
			e.JobID, e.ConsecutiveFailures, e.LastSnapshot.State, e.Err)
	}
	return fmt.Sprintf("job %s: %d consecutive poll failures (no snapshot yet): %v",
		e.JobID, e.ConsecutiveFailures, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FatalError) Unwrap() error {
	return e.Err
}
