package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/3leaps/gridharvest/pkg/artifacts"
)

// Fetcher transfers a single remote file. Satisfied by *remote.Executor.
type Fetcher interface {
	FetchFile(ctx context.Context, remotePath, localPath string) error
}

// ManifestLocator discovers a job's artifacts. Satisfied by
// *artifacts.Locator.
type ManifestLocator interface {
	Locate(ctx context.Context, jobID string) (artifacts.Manifest, error)
}

// Summary file names written into every collection directory.
const (
	SummaryJSONName = "summary.json"
	SummaryTextName = "summary.txt"
)

// Collector downloads located artifacts and classifies job outcomes.
type Collector struct {
	locator   ManifestLocator
	fetcher   Fetcher
	workspace string

	// now is injectable for deterministic summaries in tests.
	now func() time.Time
}

// NewCollector creates a collector writing under the workspace directory.
func NewCollector(locator ManifestLocator, fetcher Fetcher, workspace string) (*Collector, error) {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		return nil, errors.New("workspace directory is required")
	}
	return &Collector{
		locator:   locator,
		fetcher:   fetcher,
		workspace: workspace,
		now:       time.Now,
	}, nil
}

// WithClock overrides the collection timestamp source.
// Returns the collector for method chaining.
func (c *Collector) WithClock(now func() time.Time) *Collector {
	c.now = now
	return c
}

// Dir returns the collection directory for a test id. The directory name
// derives from the test id alone so repeated collections overwrite
// deterministically.
func (c *Collector) Dir(testID string) string {
	return filepath.Join(c.workspace, testID)
}

// Probe checks marker presence for a job without downloading anything.
//
// The monitor uses this to disambiguate "finished and purged from the
// active queue" from "scheduler transiently dropped the row": a marker on
// the remote filesystem means the job ran to an outcome.
func (c *Collector) Probe(ctx context.Context, jobID string) (Outcome, error) {
	manifest, err := c.locator.Locate(ctx, jobID)
	if err != nil {
		return OutcomeUnknown, err
	}
	return outcomeFromManifest(manifest), nil
}

// Collect runs a full collection for (jobID, testID).
//
// An empty manifest returns OutcomeInProgress without creating a local
// directory. Otherwise every manifest entry is fetched into the collection
// directory; per-file failures are recorded and do not abort the rest. A
// marker file, when present, is parsed into detail fields and decides the
// outcome. The summary is always written, even on partial failure.
func (c *Collector) Collect(ctx context.Context, jobID, testID string) (*Result, error) {
	jobID = strings.TrimSpace(jobID)
	testID = strings.TrimSpace(testID)
	if jobID == "" {
		return nil, errors.New("job_id is required")
	}
	if testID == "" {
		return nil, errors.New("test_id is required")
	}

	manifest, err := c.locator.Locate(ctx, jobID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		JobID:       jobID,
		TestID:      testID,
		CollectedAt: c.now().UTC(),
	}

	// Nothing produced yet: report in-progress without littering the
	// workspace with an empty directory.
	if len(manifest) == 0 {
		result.Outcome = OutcomeInProgress
		return result, nil
	}

	dir := c.Dir(testID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create collection dir: %w", err)
	}
	result.LocalDir = dir
	result.Outcome = outcomeFromManifest(manifest)

	var partial *multierror.Error
	for _, name := range manifest.Names() {
		remotePath := manifest[name]
		localPath := filepath.Join(dir, filepath.FromSlash(name))

		fr := FileResult{Name: name, RemotePath: remotePath}
		if err := c.fetcher.FetchFile(ctx, remotePath, localPath); err != nil {
			fr.Error = err.Error()
			result.TransferErrors++
			partial = multierror.Append(partial, fmt.Errorf("%s: %w", name, err))
		} else {
			fr.LocalPath = localPath
		}
		result.Files = append(result.Files, fr)
	}
	result.PartialErr = partial.ErrorOrNil()

	// Parse marker details from the fetched copy. A marker that failed to
	// transfer still decides the outcome by presence; it just yields no
	// detail fields.
	if markerName, ok := markerFor(manifest, result.Outcome); ok {
		markerPath := filepath.Join(dir, filepath.FromSlash(markerName))
		if content, err := os.ReadFile(markerPath); err == nil {
			result.Details = artifacts.ParseMarker(string(content))
		}
	}

	if err := c.writeSummaries(result); err != nil {
		return result, err
	}
	return result, nil
}

// outcomeFromManifest applies the marker convention. An error marker wins
// over a simultaneous success marker: evidence of failure should not be
// masked by a stale success file.
func outcomeFromManifest(m artifacts.Manifest) Outcome {
	if _, _, ok := m.ErrorMarker(); ok {
		return OutcomeFailed
	}
	if _, _, ok := m.SuccessMarker(); ok {
		return OutcomeSuccess
	}
	return OutcomeInProgress
}

// markerFor returns the manifest marker matching the decided outcome.
func markerFor(m artifacts.Manifest, outcome Outcome) (string, bool) {
	switch outcome {
	case OutcomeFailed:
		name, _, ok := m.ErrorMarker()
		return name, ok
	case OutcomeSuccess:
		name, _, ok := m.SuccessMarker()
		return name, ok
	default:
		return "", false
	}
}

// writeSummaries persists summary.json and summary.txt into the
// collection directory.
func (c *Collector) writeSummaries(result *Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(result.LocalDir, SummaryJSONName), data, 0644); err != nil {
		return fmt.Errorf("write summary.json: %w", err)
	}

	if err := os.WriteFile(filepath.Join(result.LocalDir, SummaryTextName), []byte(textSummary(result)), 0644); err != nil {
		return fmt.Errorf("write summary.txt: %w", err)
	}
	return nil
}

// textSummary renders the human-readable summary.
func textSummary(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job:       %s\n", r.JobID)
	fmt.Fprintf(&b, "Test:      %s\n", r.TestID)
	fmt.Fprintf(&b, "Outcome:   %s\n", r.Outcome)
	fmt.Fprintf(&b, "Collected: %s\n", r.CollectedAt.Format(time.RFC3339))

	if len(r.Details) > 0 {
		b.WriteString("\nDetails:\n")
		keys := make([]string, 0, len(r.Details))
		for k := range r.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, r.Details[k])
		}
	}

	if len(r.Files) > 0 {
		b.WriteString("\nFiles:\n")
		for _, f := range r.Files {
			if f.Error != "" {
				fmt.Fprintf(&b, "  %s  ERROR: %s\n", f.Name, f.Error)
			} else {
				fmt.Fprintf(&b, "  %s\n", f.Name)
			}
		}
	}
	if r.TransferErrors > 0 {
		fmt.Fprintf(&b, "\n%d file(s) failed to transfer\n", r.TransferErrors)
	}
	return b.String()
}
