package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/3leaps/gridharvest/pkg/remote"
)

// CommandRunner executes a remote command. Satisfied by *remote.Executor.
type CommandRunner interface {
	Execute(ctx context.Context, command string) (*remote.Result, error)
}

// Locator discovers artifact files for a job under a remote result root.
type Locator struct {
	runner  CommandRunner
	root    string
	matcher *PathMatcher
}

// NewLocator creates a locator searching under root.
func NewLocator(runner CommandRunner, root string) (*Locator, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("result root is required")
	}
	if !strings.HasPrefix(root, "/") {
		return nil, fmt.Errorf("result root must be absolute, got %q", root)
	}
	return &Locator{runner: runner, root: strings.TrimRight(root, "/")}, nil
}

// WithMatcher sets an optional glob filter applied to root-relative paths.
// Returns the locator for method chaining.
func (l *Locator) WithMatcher(m *PathMatcher) *Locator {
	l.matcher = m
	return l
}

// Root returns the remote result root.
func (l *Locator) Root() string {
	return l.root
}

// Locate searches the result tree for files associated with jobID.
//
// The search matches jobID as a substring anywhere in the path below the
// root, covering both id-stamped filenames and id-stamped directories. A
// search command that exits non-zero (permissions, root not created yet)
// is treated identically to "no results yet" and yields an empty
// manifest. Transport-level failures are returned to the caller, which
// owns retry policy.
func (l *Locator) Locate(ctx context.Context, jobID string) (Manifest, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("job_id is required")
	}

	res, err := l.runner.Execute(ctx, l.findCommand(jobID))
	if err != nil {
		return nil, err
	}
	if !res.Ok() {
		return Manifest{}, nil
	}

	manifest := Manifest{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		remotePath := strings.TrimSpace(line)
		if remotePath == "" || !strings.HasPrefix(remotePath, "/") {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(remotePath, l.root), "/")
		if l.matcher != nil && !l.matcher.Match(rel) {
			continue
		}
		manifest[logicalName(manifest, remotePath)] = remotePath
	}
	return manifest, nil
}

// findCommand builds the remote search invocation. Stderr noise from
// unreadable subtrees is discarded so partial permission failures still
// yield the readable subset.
func (l *Locator) findCommand(jobID string) string {
	// The pattern is always single-quoted so the remote shell never globs
	// the wildcards; quotes inside the id (possible with force-collect's
	// operator-supplied ids) are escaped like any other quoted token.
	pattern := "'*" + strings.ReplaceAll(jobID, "'", `'\''`) + "*'"
	return fmt.Sprintf("find %s -type f -path %s 2>/dev/null", shellQuotePath(l.root), pattern)
}

// logicalName derives a unique logical name for a remote path. Base names
// collide when a job writes same-named files in different directories, in
// which case the parent directory is prepended.
func logicalName(m Manifest, remotePath string) string {
	base := path.Base(remotePath)
	if _, exists := m[base]; !exists {
		return base
	}
	qualified := path.Base(path.Dir(remotePath)) + "/" + base
	if _, exists := m[qualified]; !exists {
		return qualified
	}
	// Last resort: full path is unique by construction.
	return strings.TrimPrefix(remotePath, "/")
}

func shellQuotePath(p string) string {
	for _, r := range p {
		if r == ' ' || r == '\'' || r == '"' || r == '\\' || r == '$' || r == '`' {
			return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
		}
	}
	return p
}
