package scheduler

import (
	"strconv"
	"strings"
)

// minQueueFields is the smallest row we accept from the status feed:
// job id, name, state, elapsed. Node count and reason are legitimately
// absent on some scheduler configurations.
const minQueueFields = 4

// StatusRecord is one job's status snapshot from the scheduler feed.
//
// Records are immutable: each poll produces fresh values and callers never
// mutate them in place.
type StatusRecord struct {
	// JobID is the scheduler-assigned job identifier.
	JobID string

	// Name is the job's display name.
	Name string

	// State is the mapped lifecycle state.
	State State

	// Elapsed is the scheduler's elapsed-time string (e.g., "00:02:15"),
	// kept raw because SLURM's D-HH:MM:SS format is presentation data.
	Elapsed string

	// Nodes is the allocated node count, zero when absent.
	Nodes int

	// Reason is the scheduler's wait/termination reason, empty or "none"
	// when not applicable.
	Reason string
}

// NameFilter restricts parsing to rows whose job name contains at least
// one of the configured substrings. An empty filter admits every row.
type NameFilter struct {
	substrings []string
}

// NewNameFilter builds a filter from allowlist substrings. Blank entries
// are ignored.
func NewNameFilter(substrings []string) NameFilter {
	out := make([]string, 0, len(substrings))
	for _, s := range substrings {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return NameFilter{substrings: out}
}

// Admit reports whether a job name passes the filter.
func (f NameFilter) Admit(name string) bool {
	if len(f.substrings) == 0 {
		return true
	}
	for _, s := range f.substrings {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// ParseQueue parses scheduler status output into status records.
//
// Input is whitespace-delimited text, one job per line, columns
// [job_id, name, state, elapsed, nodes, reason...]. Rows with fewer than
// four fields are dropped, not errors: the feed legitimately omits
// trailing fields. Rows whose name fails the filter are silently
// excluded. ParseQueue never fails on malformed input.
func ParseQueue(raw string, filter NameFilter) []StatusRecord {
	var records []StatusRecord

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < minQueueFields {
			continue
		}

		name := fields[1]
		if !filter.Admit(name) {
			continue
		}

		rec := StatusRecord{
			JobID:   fields[0],
			Name:    name,
			State:   ParseState(fields[2]),
			Elapsed: fields[3],
		}
		if len(fields) > 4 {
			if n, err := strconv.Atoi(fields[4]); err == nil {
				rec.Nodes = n
			}
		}
		if len(fields) > 5 {
			rec.Reason = strings.Join(fields[5:], " ")
		}

		records = append(records, rec)
	}

	return records
}

// FindJob returns the record for jobID from a parsed queue, or nil if the
// job is not present in the feed.
func FindJob(records []StatusRecord, jobID string) *StatusRecord {
	for i := range records {
		if records[i].JobID == jobID {
			return &records[i]
		}
	}
	return nil
}

// ParseSubmitOutput extracts the scheduler job id from sbatch output.
//
// The usual form is "Submitted batch job 59774392"; as a fallback the
// first all-digit token is used. Returns empty string when no id can be
// found.
func ParseSubmitOutput(raw string) string {
	fields := strings.Fields(raw)
	for i, f := range fields {
		if f == "job" && i+1 < len(fields) && isDigits(fields[i+1]) {
			return fields[i+1]
		}
	}
	for _, f := range fields {
		if isDigits(f) {
			return f
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
