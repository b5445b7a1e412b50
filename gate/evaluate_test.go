package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/aof/task"
)

func threeGateWorkflow() Workflow {
	return Workflow{
		RejectionStrategy: Origin,
		Gates: []Def{
			{ID: "draft", Role: "author", CanReject: false},
			{ID: "review", Role: "reviewer", CanReject: true},
			{ID: "ship", Role: "release", CanReject: true, When: "tags.includes('needs-release')"},
		},
	}
}

func taskAtGate(gateID string, entered time.Time) *task.Task {
	return &task.Task{
		ID:     "TASK-2026-07-31-001",
		Title:  "T",
		Status: task.StatusInProgress,
		Lease:  &task.Lease{Agent: "agent-a", AcquiredAt: entered, ExpiresAt: entered.Add(time.Hour)},
		Gate:   &task.Gate{Current: gateID, Entered: entered},
	}
}

func TestEvaluate_CompleteAdvancesToNextGate(t *testing.T) {
	now := time.Now().UTC()
	tk := taskAtGate("draft", now.Add(-time.Hour))
	w := threeGateWorkflow()

	res, err := Evaluate(Input{Task: tk, Workflow: w, Outcome: OutcomeComplete, Agent: "agent-a", Now: now})
	require.NoError(t, err)

	assert.Equal(t, task.StatusReady, res.Status)
	require.NotNil(t, res.NewGate)
	assert.Equal(t, "review", res.NewGate.Current)
	assert.True(t, res.ClearReviewContext)
	assert.Equal(t, "draft", res.HistoryEntry.Gate)
	assert.Equal(t, string(OutcomeComplete), res.HistoryEntry.Outcome)
}

func TestEvaluate_CompleteSkipsInactiveGateAndFinishes(t *testing.T) {
	now := time.Now().UTC()
	tk := taskAtGate("review", now.Add(-time.Hour))
	w := threeGateWorkflow() // ship's `when` requires the 'needs-release' tag; tk has none

	res, err := Evaluate(Input{Task: tk, Workflow: w, Outcome: OutcomeComplete, Agent: "reviewer-a", Now: now})
	require.NoError(t, err)

	assert.Equal(t, task.StatusDone, res.Status)
	assert.Nil(t, res.NewGate)
	assert.Equal(t, []string{"ship"}, res.Skipped)
}

func TestEvaluate_CompleteTakesActiveConditionalGate(t *testing.T) {
	now := time.Now().UTC()
	tk := taskAtGate("review", now.Add(-time.Hour))
	tk.Routing.Tags = []string{"needs-release"}
	w := threeGateWorkflow()

	res, err := Evaluate(Input{Task: tk, Workflow: w, Outcome: OutcomeComplete, Agent: "reviewer-a", Now: now})
	require.NoError(t, err)

	assert.Equal(t, task.StatusReady, res.Status)
	require.NotNil(t, res.NewGate)
	assert.Equal(t, "ship", res.NewGate.Current)
	assert.Empty(t, res.Skipped)
}

func TestEvaluate_NeedsReviewReturnsToOriginGate(t *testing.T) {
	now := time.Now().UTC()
	tk := taskAtGate("review", now.Add(-30*time.Minute))
	w := threeGateWorkflow()

	res, err := Evaluate(Input{
		Task: tk, Workflow: w, Outcome: OutcomeNeedsReview, Agent: "reviewer-a", Now: now,
		Blockers: []string{"missing tests"}, RejectionNotes: "please add coverage",
	})
	require.NoError(t, err)

	assert.Equal(t, task.StatusReady, res.Status)
	require.NotNil(t, res.NewGate)
	assert.Equal(t, "draft", res.NewGate.Current, "rejections return to the origin gate")
	require.NotNil(t, res.ReviewContext)
	assert.Equal(t, "review", res.ReviewContext.FromGate)
	assert.Equal(t, []string{"missing tests"}, res.ReviewContext.Blockers)
}

func TestEvaluate_BlockedStaysAtCurrentGate(t *testing.T) {
	now := time.Now().UTC()
	tk := taskAtGate("review", now.Add(-time.Minute))
	w := threeGateWorkflow()

	res, err := Evaluate(Input{Task: tk, Workflow: w, Outcome: OutcomeBlocked, Agent: "reviewer-a", Now: now})
	require.NoError(t, err)

	assert.Equal(t, task.StatusBlocked, res.Status)
	require.NotNil(t, res.NewGate)
	assert.Equal(t, "review", res.NewGate.Current)
}

func TestEvaluate_RejectsUnknownGate(t *testing.T) {
	now := time.Now().UTC()
	tk := taskAtGate("nonexistent", now)
	w := threeGateWorkflow()

	_, err := Evaluate(Input{Task: tk, Workflow: w, Outcome: OutcomeComplete, Now: now})
	var gerr *ErrGateNotInWorkflow
	require.ErrorAs(t, err, &gerr)
}

// Apply must append exactly one history entry per call (§8 testable
// property 3: gate history is append-only).
func TestApply_AppendsExactlyOneHistoryEntry(t *testing.T) {
	now := time.Now().UTC()
	tk := taskAtGate("draft", now.Add(-time.Hour))
	tk.GateHistory = []task.GateHistoryEntry{{Gate: "intake", Outcome: "complete"}}
	w := threeGateWorkflow()

	res, err := Evaluate(Input{Task: tk, Workflow: w, Outcome: OutcomeComplete, Agent: "agent-a", Now: now})
	require.NoError(t, err)

	Apply(tk, res)
	require.Len(t, tk.GateHistory, 2)
	assert.Equal(t, "intake", tk.GateHistory[0].Gate)
	assert.Equal(t, "draft", tk.GateHistory[1].Gate)
	assert.Equal(t, task.StatusReady, tk.Status)
	assert.Equal(t, "review", tk.Gate.Current)
	assert.Nil(t, tk.ReviewContext)
}

// Evaluate is a pure function: the same Input always produces the same
// Result (§8 testable property 4), so repeated evaluation of an unmodified
// task is idempotent at the decision level.
func TestEvaluate_IsPureAndRepeatable(t *testing.T) {
	now := time.Now().UTC()
	tk := taskAtGate("draft", now.Add(-time.Hour))
	w := threeGateWorkflow()
	in := Input{Task: tk, Workflow: w, Outcome: OutcomeComplete, Agent: "agent-a", Now: now}

	first, err := Evaluate(in)
	require.NoError(t, err)
	second, err := Evaluate(in)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.NewGate, second.NewGate)
	assert.Equal(t, first.HistoryEntry, second.HistoryEntry)
}
