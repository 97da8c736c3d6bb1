// Package artifacts locates a job's output files in a remote result tree.
//
// Discovery is name-based: a recursive search under a configured result
// root, narrowed to paths embedding the scheduler job id, optionally
// filtered by glob patterns. The remote filesystem is the source of truth -
// manifests are recomputed on demand and never cached across polls.
package artifacts

import (
	"sort"
	"strings"
)

// Manifest maps logical file names to remote absolute paths for one job.
//
// An empty manifest is a valid, expected state while a job has not yet
// produced output.
type Manifest map[string]string

// Names returns the logical file names in sorted order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Marker-file naming convention. A remote file whose name contains one of
// these substrings signals the job outcome; content is "key: value" lines.
const (
	SuccessMarkerSubstring = "success"
	ErrorMarkerSubstring   = "error"
)

// SuccessMarker returns the logical name and remote path of the success
// marker, if present.
func (m Manifest) SuccessMarker() (string, string, bool) {
	return m.findMarker(SuccessMarkerSubstring)
}

// ErrorMarker returns the logical name and remote path of the error
// marker, if present.
func (m Manifest) ErrorMarker() (string, string, bool) {
	return m.findMarker(ErrorMarkerSubstring)
}

// findMarker scans logical names for a marker substring. Names are scanned
// in sorted order so repeated calls against the same manifest are
// deterministic even if several files carry the substring.
func (m Manifest) findMarker(substring string) (string, string, bool) {
	for _, name := range m.Names() {
		if strings.Contains(strings.ToLower(name), substring) {
			return name, m[name], true
		}
	}
	return "", "", false
}

// ParseMarker parses marker-file content into detail fields.
//
// Content is newline-separated "key: value" pairs; lines without a colon
// are skipped. Keys and values are whitespace-trimmed.
func ParseMarker(content string) map[string]string {
	details := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		details[key] = strings.TrimSpace(value)
	}
	return details
}
