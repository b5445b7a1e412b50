package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/lease"
	"github.com/c360studio/aof/murmur"
	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	root := t.TempDir()
	emit := events.NewLogger(root, nil)
	s := store.New(root, nil, emit)
	require.NoError(t, s.EnsureLayout())
	return s
}

// inProgress creates a ready-started task and acquires a lease on it, the
// only supported path into StatusInProgress.
func inProgress(t *testing.T, s *store.Store) *task.Task {
	t.Helper()
	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true})
	require.NoError(t, err)
	got, err := lease.New(s).Acquire(created.ID, "agent-a", time.Hour, 0)
	require.NoError(t, err)
	return got
}

func TestApplyCompletion_NoWorkflow_DoneTransition(t *testing.T) {
	s := newTestStore(t)
	tk := inProgress(t, s)

	p := CompletionReportPayload{Outcome: "done", SummaryRef: "s.md"}
	err := ApplyCompletion(s, nil, tk.ID, "agent-a", p, time.Now().UTC(), nil)
	require.NoError(t, err)

	got, err := s.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, got.Status)
}

func TestApplyCompletion_NoWorkflow_NeedsReviewRoutesToReview(t *testing.T) {
	s := newTestStore(t)
	tk := inProgress(t, s)

	p := CompletionReportPayload{Outcome: "needs_review"}
	err := ApplyCompletion(s, nil, tk.ID, "agent-a", p, time.Now().UTC(), nil)
	require.NoError(t, err)

	got, err := s.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusReview, got.Status)
}

func TestApplyCompletion_WritesRunResultArtifact(t *testing.T) {
	s := newTestStore(t)
	tk := inProgress(t, s)

	p := CompletionReportPayload{Outcome: "blocked", Blockers: []string{"waiting on api key"}}
	err := ApplyCompletion(s, nil, tk.ID, "agent-a", p, time.Now().UTC(), nil)
	require.NoError(t, err)

	rr, ok, err := ReadRunResult(s, tk.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "blocked", rr.Outcome)
	assert.Equal(t, []string{"waiting on api key"}, rr.Blockers)
	assert.Equal(t, "agent-a", rr.Agent)

	got, err := s.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusBlocked, got.Status)
}

func TestReadRunResult_AbsentReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	created, err := s.Create(store.CreateInput{Title: "T1"})
	require.NoError(t, err)

	_, ok, err := ReadRunResult(s, created.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyCompletion_DoneIncrementsMurmurCompletionCounter(t *testing.T) {
	s := newTestStore(t)
	created, err := s.Create(store.CreateInput{Title: "T1", Routing: task.Routing{Team: "team-a"}, StartReady: true})
	require.NoError(t, err)
	tk, err := lease.New(s).Acquire(created.ID, "agent-a", time.Hour, 0)
	require.NoError(t, err)

	mgr := murmur.New(s, nil, nil)
	p := CompletionReportPayload{Outcome: "done"}
	err = ApplyCompletion(s, nil, tk.ID, "agent-a", p, time.Now().UTC(), mgr)
	require.NoError(t, err)

	state, err := murmur.LoadState(s.Root(), "team-a")
	require.NoError(t, err)
	assert.Equal(t, 1, state.CompletionsSinceLastReview)
}

func TestApplyCompletion_BlockedDoesNotTouchMurmurCounters(t *testing.T) {
	s := newTestStore(t)
	created, err := s.Create(store.CreateInput{Title: "T1", Routing: task.Routing{Team: "team-a"}, StartReady: true})
	require.NoError(t, err)
	tk, err := lease.New(s).Acquire(created.ID, "agent-a", time.Hour, 0)
	require.NoError(t, err)

	mgr := murmur.New(s, nil, nil)
	p := CompletionReportPayload{Outcome: "blocked", Blockers: []string{"waiting"}}
	err = ApplyCompletion(s, nil, tk.ID, "agent-a", p, time.Now().UTC(), mgr)
	require.NoError(t, err)

	state, err := murmur.LoadState(s.Root(), "team-a")
	require.NoError(t, err)
	assert.Equal(t, 0, state.CompletionsSinceLastReview)
	assert.Equal(t, 0, state.FailuresSinceLastReview)
}

func TestApplyCompletion_UnknownOutcomeRejected(t *testing.T) {
	s := newTestStore(t)
	tk := inProgress(t, s)

	p := CompletionReportPayload{Outcome: "sideways"}
	err := ApplyCompletion(s, nil, tk.ID, "agent-a", p, time.Now().UTC(), nil)
	assert.Error(t, err)
}
