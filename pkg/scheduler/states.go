// Package scheduler parses SLURM scheduler output into typed records.
//
// All functions in this package are pure: they take raw text produced by a
// remote scheduler command and return typed values, without performing any
// I/O. The scheduler's status vocabulary is not stable across versions, so
// unrecognized state strings map to StateUnknown instead of failing.
package scheduler

import "strings"

// State is the lifecycle state of a scheduler job.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
	StateUnknown   State = "UNKNOWN"
)

// stateTable maps raw scheduler state strings to the closed State enum.
// SLURM emits more vocabulary than we model; near-synonyms collapse onto
// the closest state and everything else falls through to StateUnknown.
var stateTable = map[string]State{
	"PENDING":       StatePending,
	"PD":            StatePending,
	"CONFIGURING":   StatePending,
	"RUNNING":       StateRunning,
	"R":             StateRunning,
	"COMPLETING":    StateRunning,
	"COMPLETED":     StateCompleted,
	"CD":            StateCompleted,
	"FAILED":        StateFailed,
	"F":             StateFailed,
	"NODE_FAIL":     StateFailed,
	"OUT_OF_MEMORY": StateFailed,
	"TIMEOUT":       StateFailed,
	"CANCELLED":     StateCancelled,
	"CA":            StateCancelled,
}

// ParseState maps a raw scheduler state string to a State.
//
// Matching is case-insensitive and tolerates SLURM's trailing "+" marker
// on accounting output (e.g., "CANCELLED+").
func ParseState(raw string) State {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.TrimRight(key, "+")
	// "CANCELLED by 12345" style annotations
	if idx := strings.IndexByte(key, ' '); idx >= 0 {
		key = key[:idx]
	}
	if s, ok := stateTable[key]; ok {
		return s
	}
	return StateUnknown
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}
