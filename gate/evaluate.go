package gate

import (
	"fmt"
	"time"

	"github.com/c360studio/aof/task"
)

// Input carries everything evaluate() needs to decide a task's next state.
// evaluate is a pure function: given the same Input it always returns the
// same Result, and applying that Result appends exactly one gateHistory
// entry per call (§8 testable property 4).
type Input struct {
	Task           *task.Task
	Workflow       Workflow
	Outcome        Outcome
	Summary        string
	Blockers       []string
	RejectionNotes string
	Agent          string
	Now            time.Time // evaluation timestamp; callers pass time.Now()
}

// Result is what evaluate() decided.
type Result struct {
	// Status is the task's new status, or "" to leave it unchanged.
	Status task.Status
	// NewGate is the gate the task moves to, or nil if the task leaves the
	// workflow entirely (status becomes done).
	NewGate *task.Gate
	// ReviewContext is set on a needs_review rejection and nil otherwise.
	// A nil ReviewContext leaves the task's prior review context untouched
	// unless ClearReviewContext is true (set on a complete advance).
	ReviewContext    *task.ReviewContext
	ClearReviewContext bool
	// HistoryEntry is appended to the task's gateHistory.
	HistoryEntry task.GateHistoryEntry
	// Skipped lists any intermediate gates whose `when` predicate evaluated
	// false during a complete advance.
	Skipped []string
}

// ErrGateNotInWorkflow is returned when the task's current gate does not
// name a gate present in the workflow.
type ErrGateNotInWorkflow struct{ Gate string }

func (e *ErrGateNotInWorkflow) Error() string {
	return fmt.Sprintf("gate %q is not in the configured workflow", e.Gate)
}

// Evaluate is the pure state-machine function described in §4.6.
func Evaluate(in Input) (Result, error) {
	if in.Task.Gate == nil {
		return Result{}, fmt.Errorf("evaluate: task %s has no gate", in.Task.ID)
	}
	idx := in.Workflow.Index(in.Task.Gate.Current)
	if idx < 0 {
		return Result{}, &ErrGateNotInWorkflow{Gate: in.Task.Gate.Current}
	}
	current := in.Workflow.Gates[idx]

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	duration := now.Sub(in.Task.Gate.Entered)

	baseEntry := task.GateHistoryEntry{
		Gate:     current.ID,
		Role:     current.Role,
		Agent:    in.Agent,
		Entered:  in.Task.Gate.Entered,
		Exited:   now,
		Outcome:  string(in.Outcome),
		Summary:  in.Summary,
		Blockers: in.Blockers,
		Duration: duration,
	}

	switch in.Outcome {
	case OutcomeComplete:
		return evaluateComplete(in, idx, now, baseEntry)
	case OutcomeNeedsReview:
		return evaluateNeedsReview(in, now, baseEntry)
	case OutcomeBlocked:
		return Result{
			Status:       task.StatusBlocked,
			NewGate:      in.Task.Gate,
			HistoryEntry: baseEntry,
		}, nil
	default:
		return Result{}, fmt.Errorf("evaluate: unknown outcome %q", in.Outcome)
	}
}

func evaluateComplete(in Input, idx int, now time.Time, entry task.GateHistoryEntry) (Result, error) {
	ctx := Context{Tags: in.Task.Routing.Tags, Role: in.Task.Routing.Role, Team: in.Task.Routing.Team}

	var skipped []string
	for i := idx + 1; i < len(in.Workflow.Gates); i++ {
		next := in.Workflow.Gates[i]
		if evalWhen(next.When, ctx) {
			return Result{
				Status:             task.StatusReady,
				NewGate:            &task.Gate{Current: next.ID, Entered: now},
				ClearReviewContext: true,
				HistoryEntry:       entry,
				Skipped:            skipped,
			}, nil
		}
		skipped = append(skipped, next.ID)
	}

	// No further active gate: the task is done.
	return Result{
		Status:             task.StatusDone,
		NewGate:             nil,
		ClearReviewContext: true,
		HistoryEntry:       entry,
		Skipped:            skipped,
	}, nil
}

func evaluateNeedsReview(in Input, now time.Time, entry task.GateHistoryEntry) (Result, error) {
	if len(in.Workflow.Gates) == 0 {
		return Result{}, fmt.Errorf("evaluate: workflow has no gates")
	}
	origin := in.Workflow.Gates[0]

	rc := &task.ReviewContext{
		FromGate:  in.Task.Gate.Current,
		FromAgent: in.Agent,
		FromRole:  workflowRole(in.Workflow, in.Task.Gate.Current),
		Timestamp: now,
		Blockers:  in.Blockers,
		Notes:     in.RejectionNotes,
	}

	return Result{
		Status:        task.StatusReady,
		NewGate:       &task.Gate{Current: origin.ID, Entered: now},
		ReviewContext: rc,
		HistoryEntry:  entry,
	}, nil
}

func workflowRole(w Workflow, gateID string) string {
	if g, ok := w.ByID(gateID); ok {
		return g.Role
	}
	return ""
}

// Apply mutates t in place per result, appending exactly one history entry.
// Calling Apply twice with the same Result appends the entry twice (callers
// must not double-apply); the idempotence guarantee in §8 refers to
// re-running Evaluate+Apply with the same Input, not re-applying one Result.
func Apply(t *task.Task, result Result) {
	t.GateHistory = append(t.GateHistory, result.HistoryEntry)
	if result.Status != "" {
		t.Status = result.Status
	}
	t.Gate = result.NewGate
	if result.ClearReviewContext {
		t.ReviewContext = nil
	} else if result.ReviewContext != nil {
		t.ReviewContext = result.ReviewContext
	}
}
