package murmur

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

// DefaultReviewTimeout is the default staleness window a review task is
// allowed to sit in before the cleanup pass force-clears the guard.
const DefaultReviewTimeout = 30 * time.Minute

// ReviewTaskKind is the task.MetaKind value Fire stamps on the orchestration
// review tasks it creates, so completion/deadletter bookkeeping elsewhere
// can tell a review task apart from a regular one.
const ReviewTaskKind = "orchestration_review"

const lockTimeout = 5 * time.Second

// Manager owns per-team murmur state, serialized via Lock.
type Manager struct {
	store  *store.Store
	events *events.Logger
	logger *slog.Logger
}

// New builds a Manager over s.
func New(s *store.Store, emit *events.Logger, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: s, events: emit, logger: logger}
}

func (m *Manager) withLock(teamID string, fn func() error) error {
	lock, err := Acquire(m.store.Root(), teamID, lockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}

func (m *Manager) emit(eventType, actor, taskID string, payload map[string]any) {
	if m.events == nil {
		return
	}
	_, _ = m.events.Emit(eventType, actor, taskID, payload)
}

// Fire creates a review task for team, assigned to its orchestrator, and
// records it as the current review in team state. Re-checks the idempotency
// guard under the file lock to avoid a race between Evaluate and Fire.
func (m *Manager) Fire(team config.Team, trig config.Trigger, now time.Time) (*task.Task, error) {
	if team.Orchestrator == "" {
		return nil, fmt.Errorf("murmur: team %s has no orchestrator to review", team.ID)
	}

	var reviewTask *task.Task
	err := m.withLock(team.ID, func() error {
		state, err := LoadState(m.store.Root(), team.ID)
		if err != nil {
			return err
		}
		if state.InReview() {
			return nil
		}

		t, err := m.store.Create(store.CreateInput{
			Title:      fmt.Sprintf("Orchestration review: %s", team.ID),
			Priority:   task.PriorityNormal,
			Routing:    task.Routing{Agent: team.Orchestrator, Team: team.ID},
			CreatedBy:  "murmur",
			Metadata:   task.Metadata{task.MetaKind: ReviewTaskKind},
			StartReady: true,
		})
		if err != nil {
			return fmt.Errorf("create review task for team %s: %w", team.ID, err)
		}
		reviewTask = t

		state.CurrentReviewTaskID = t.ID
		state.ReviewStartedAt = now
		state.LastTriggeredBy = trig.Type
		state.CompletionsSinceLastReview = 0
		state.FailuresSinceLastReview = 0
		if err := SaveState(m.store.Root(), team.ID, state); err != nil {
			return err
		}

		m.emit(events.TypeMurmurReviewStarted, "murmur", t.ID, map[string]any{"team": team.ID, "trigger": trig.Type})
		return nil
	})
	return reviewTask, err
}

// EndReview clears the review guard and records lastReviewAt, called when
// the team's review task reaches done.
func (m *Manager) EndReview(teamID string, now time.Time) error {
	return m.withLock(teamID, func() error {
		state, err := LoadState(m.store.Root(), teamID)
		if err != nil {
			return err
		}
		reviewTaskID := state.CurrentReviewTaskID
		state.CurrentReviewTaskID = ""
		state.ReviewStartedAt = time.Time{}
		state.LastReviewAt = now
		if err := SaveState(m.store.Root(), teamID, state); err != nil {
			return err
		}
		m.emit(events.TypeMurmurReviewEnded, "murmur", reviewTaskID, map[string]any{"team": teamID})
		return nil
	})
}

// OnReviewTaskDeadletter increments the team's failure counter when its
// review task itself deadletters; per §4.8 the guard is left in place for
// the cleanup pass to resolve.
func (m *Manager) OnReviewTaskDeadletter(teamID string) error {
	return m.withLock(teamID, func() error {
		state, err := LoadState(m.store.Root(), teamID)
		if err != nil {
			return err
		}
		state.FailuresSinceLastReview++
		return SaveState(m.store.Root(), teamID, state)
	})
}

// OnTaskDone increments completionsSinceLastReview for a regular (non-review)
// task reaching done.
func (m *Manager) OnTaskDone(teamID string) error {
	return m.withLock(teamID, func() error {
		state, err := LoadState(m.store.Root(), teamID)
		if err != nil {
			return err
		}
		state.CompletionsSinceLastReview++
		return SaveState(m.store.Root(), teamID, state)
	})
}

// OnTaskDeadletter increments failuresSinceLastReview for a regular task
// reaching deadletter.
func (m *Manager) OnTaskDeadletter(teamID string) error {
	return m.withLock(teamID, func() error {
		state, err := LoadState(m.store.Root(), teamID)
		if err != nil {
			return err
		}
		state.FailuresSinceLastReview++
		return SaveState(m.store.Root(), teamID, state)
	})
}

// Cleanup detects and clears a stale review guard: the review task is
// missing, already done, or older than timeout (default 30 min).
func (m *Manager) Cleanup(teamID string, now time.Time, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReviewTimeout
	}
	return m.withLock(teamID, func() error {
		state, err := LoadState(m.store.Root(), teamID)
		if err != nil {
			return err
		}
		if !state.InReview() {
			return nil
		}

		reason := ""
		t, getErr := m.store.Get(state.CurrentReviewTaskID)
		switch {
		case errors.Is(getErr, store.ErrTaskNotFound):
			reason = "task_not_found"
		case getErr == nil && t.Status == task.StatusDone:
			reason = "task_done"
		case now.Sub(state.ReviewStartedAt) > timeout:
			reason = "timeout"
		}
		if reason == "" {
			return nil
		}

		reviewTaskID := state.CurrentReviewTaskID
		state.CurrentReviewTaskID = ""
		state.ReviewStartedAt = time.Time{}
		state.LastReviewAt = now
		if err := SaveState(m.store.Root(), teamID, state); err != nil {
			return err
		}
		m.emit(events.TypeMurmurReviewCleaned, "murmur", reviewTaskID, map[string]any{"team": teamID, "reason": reason})
		return nil
	})
}
