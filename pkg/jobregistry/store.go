package jobregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store persists and loads SubmissionRecords from an on-disk directory.
//
// Directory layout:
//
//	<root>/<test_id>/submission.json
//	<root>/<test_id>/events.jsonl
//
// Root is expected to be under the app data dir.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) SubmissionDir(testID string) string {
	return filepath.Join(s.root, testID)
}

func (s *Store) SubmissionPath(testID string) string {
	return filepath.Join(s.SubmissionDir(testID), "submission.json")
}

// EventsPath is where the watch loop's JSONL event stream for this
// submission is appended.
func (s *Store) EventsPath(testID string) string {
	return filepath.Join(s.SubmissionDir(testID), "events.jsonl")
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("submission registry root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

func (s *Store) Write(record *SubmissionRecord) error {
	if record == nil {
		return fmt.Errorf("submission record is nil")
	}
	testID := strings.TrimSpace(record.TestID)
	if testID == "" {
		return fmt.Errorf("test_id is required")
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	dir := s.SubmissionDir(testID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create submission dir: %w", err)
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal submission record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "submission.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp submission file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp submission file: %w", err)
	}

	finalPath := s.SubmissionPath(testID)
	if err := os.Rename(tmpName, finalPath); err != nil {
		return fmt.Errorf("rename submission file: %w", err)
	}
	return nil
}

func (s *Store) Get(testID string) (*SubmissionRecord, error) {
	testID = strings.TrimSpace(testID)
	if testID == "" {
		return nil, fmt.Errorf("test_id is required")
	}
	path := s.SubmissionPath(testID)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("submission.json is empty")
	}

	var record SubmissionRecord
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse submission.json: %w", err)
	}
	return &record, nil
}

// Update loads a record, applies fn, and writes the result back.
func (s *Store) Update(testID string, fn func(*SubmissionRecord)) (*SubmissionRecord, error) {
	record, err := s.Get(testID)
	if err != nil {
		return nil, err
	}
	fn(record)
	if err := s.Write(record); err != nil {
		return nil, err
	}
	return record, nil
}

// MarkTerminal records the final state and outcome of a submission.
func (s *Store) MarkTerminal(testID string, state SubmissionState, outcome, localDir string) (*SubmissionRecord, error) {
	now := time.Now().UTC()
	return s.Update(testID, func(r *SubmissionRecord) {
		r.State = state
		r.Outcome = outcome
		r.LocalDir = localDir
		r.EndedAt = &now
	})
}

func (s *Store) List() ([]SubmissionRecord, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read submissions root: %w", err)
	}

	out := make([]SubmissionRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.Get(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		return submissionSortTime(out[i]).After(submissionSortTime(out[j]))
	})

	return out, nil
}

func submissionSortTime(r SubmissionRecord) time.Time {
	if r.SubmittedAt != nil {
		return r.SubmittedAt.UTC()
	}
	return r.CreatedAt.UTC()
}
