package artifacts

import (
	"errors"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PathMatcher narrows located artifact paths by glob patterns.
//
//   - Include patterns: a path must match at least one (empty = match all)
//   - Exclude patterns: a path must not match any
//
// Patterns are evaluated against the path relative to the result root, so
// a manifest entry at <root>/run_59774392/out/metrics.csv matches
// "**/*.csv". The matcher is safe for concurrent use after creation.
type PathMatcher struct {
	includes []string
	excludes []string
}

// ErrInvalidPattern is returned when a glob pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// NewPathMatcher compiles include and exclude patterns.
// Unlike a listing matcher, includes may be empty: artifact discovery is
// already narrowed by job id, and an empty include set keeps everything.
func NewPathMatcher(includes, excludes []string) (*PathMatcher, error) {
	for _, p := range append(append([]string{}, includes...), excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
	}
	return &PathMatcher{includes: includes, excludes: excludes}, nil
}

// Match reports whether a root-relative path passes the patterns.
func (m *PathMatcher) Match(relPath string) bool {
	if m == nil {
		return true
	}
	relPath = strings.TrimPrefix(path.Clean(relPath), "/")

	if len(m.includes) > 0 {
		matched := false
		for _, p := range m.includes {
			if ok, err := doublestar.Match(p, relPath); err == nil && ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, p := range m.excludes {
		if ok, err := doublestar.Match(p, relPath); err == nil && ok {
			return false
		}
	}
	return true
}
