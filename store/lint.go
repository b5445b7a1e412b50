package store

import (
	"fmt"
	"os"

	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/task"
)

// LintIssue names one malformed record found by Lint.
type LintIssue struct {
	TaskID string
	Issue  string
}

// Lint scans every status bucket, decoding each record and validating it.
// Malformed records emit task.validation.failed events (never silently
// skipped) and are reported in the returned slice; Lint itself never
// returns an error for a single bad record.
func (s *Store) Lint() ([]LintIssue, error) {
	var issues []LintIssue

	for _, st := range task.AllStatuses {
		entries, err := os.ReadDir(s.bucketPath(st))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("lint list %s: %w", st, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			id := e.Name()
			data, err := os.ReadFile(s.recordPath(st, id))
			if err != nil {
				issues = append(issues, s.reportLint(id, fmt.Sprintf("unreadable record: %v", err)))
				continue
			}
			t, err := task.Decode(data)
			if err != nil {
				issues = append(issues, s.reportLint(id, fmt.Sprintf("decode failure: %v", err)))
				continue
			}
			if t.Status != st {
				issues = append(issues, s.reportLint(id, fmt.Sprintf("status field %q does not match bucket %q", t.Status, st)))
				continue
			}
			if err := task.Validate(t); err != nil {
				issues = append(issues, s.reportLint(id, err.Error()))
				continue
			}
		}
	}

	return issues, nil
}

func (s *Store) reportLint(id, issue string) LintIssue {
	s.emitEvent(events.TypeTaskValidationFailed, "lint", id, map[string]any{"issue": issue})
	return LintIssue{TaskID: id, Issue: issue}
}
