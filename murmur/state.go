// Package murmur implements per-team periodic review triggers (§4.8).
package murmur

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateDir is the directory under the data root holding per-team review
// state, per the §6 data directory contract.
const StateDir = ".murmur"

// TeamState is the per-team bookkeeping the trigger evaluator reads and the
// firing/ending logic mutates.
type TeamState struct {
	CurrentReviewTaskID        string    `json:"currentReviewTaskId,omitempty"`
	ReviewStartedAt            time.Time `json:"reviewStartedAt,omitempty"`
	LastReviewAt               time.Time `json:"lastReviewAt,omitempty"`
	LastTriggeredBy            string    `json:"lastTriggeredBy,omitempty"`
	CompletionsSinceLastReview int       `json:"completionsSinceLastReview"`
	FailuresSinceLastReview    int       `json:"failuresSinceLastReview"`
}

// InReview reports whether a review task is currently outstanding for the
// team (the idempotency guard in §4.8: "a trigger does not fire while
// currentReviewTaskId != null").
func (s TeamState) InReview() bool {
	return s.CurrentReviewTaskID != ""
}

func statePath(root, teamID string) string {
	return filepath.Join(root, StateDir, teamID+".json")
}

// LoadState reads a team's state file, returning the zero value if it does
// not yet exist.
func LoadState(root, teamID string) (TeamState, error) {
	data, err := os.ReadFile(statePath(root, teamID))
	if err != nil {
		if os.IsNotExist(err) {
			return TeamState{}, nil
		}
		return TeamState{}, fmt.Errorf("read murmur state for %s: %w", teamID, err)
	}
	var s TeamState
	if err := json.Unmarshal(data, &s); err != nil {
		return TeamState{}, fmt.Errorf("parse murmur state for %s: %w", teamID, err)
	}
	return s, nil
}

// SaveState atomically writes a team's state file.
func SaveState(root, teamID string, s TeamState) error {
	dir := filepath.Join(root, StateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create murmur state dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal murmur state for %s: %w", teamID, err)
	}
	path := statePath(root, teamID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp murmur state for %s: %w", teamID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename murmur state for %s into place: %w", teamID, err)
	}
	return nil
}
