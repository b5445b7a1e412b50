package murmur

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/events"
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

func TestStateRoundTrip(t *testing.T) {
	root := t.TempDir()
	state := TeamState{CurrentReviewTaskID: "TASK-2026-07-31-001", CompletionsSinceLastReview: 3}
	require.NoError(t, SaveState(root, "team-a", state))

	got, err := LoadState(root, "team-a")
	require.NoError(t, err)
	assert.Equal(t, state.CurrentReviewTaskID, got.CurrentReviewTaskID)
	assert.Equal(t, 3, got.CompletionsSinceLastReview)
}

func TestLoadState_MissingReturnsZeroValue(t *testing.T) {
	root := t.TempDir()
	got, err := LoadState(root, "never-seen")
	require.NoError(t, err)
	assert.False(t, got.InReview())
}

// Fire must not create a second review task while one is already
// outstanding (§8 scenario: N sequential polls, exactly one review task
// created).
func TestFire_IdempotentAcrossRepeatedCalls(t *testing.T) {
	s := newTestStore(t)
	m := New(s, nil, nil)
	team := config.Team{ID: "team-a", Orchestrator: "orchestrator-a"}
	trig := config.Trigger{Type: TriggerQueueEmpty}
	now := time.Now().UTC()

	first, err := m.Fire(team, trig, now)
	require.NoError(t, err)
	require.NotNil(t, first)

	for i := 0; i < 9; i++ {
		again, err := m.Fire(team, trig, now.Add(time.Duration(i+1)*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, again, "no additional review task while one is already in flight")
	}

	readyTasks, err := s.ListStatus(task.StatusReady)
	require.NoError(t, err)
	count := 0
	for _, tk := range readyTasks {
		if tk.Metadata.GetString(task.MetaKind) == "orchestration_review" {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one review task must exist after repeated fires")
}

func TestFire_RequiresOrchestrator(t *testing.T) {
	s := newTestStore(t)
	m := New(s, nil, nil)
	team := config.Team{ID: "team-a"}
	_, err := m.Fire(team, config.Trigger{Type: TriggerQueueEmpty}, time.Now().UTC())
	assert.Error(t, err)
}

func TestEndReview_ClearsGuard(t *testing.T) {
	s := newTestStore(t)
	m := New(s, nil, nil)
	team := config.Team{ID: "team-a", Orchestrator: "orchestrator-a"}
	now := time.Now().UTC()

	_, err := m.Fire(team, config.Trigger{Type: TriggerQueueEmpty}, now)
	require.NoError(t, err)

	state, err := LoadState(s.Root(), "team-a")
	require.NoError(t, err)
	assert.True(t, state.InReview())

	require.NoError(t, m.EndReview("team-a", now.Add(time.Minute)))

	state, err = LoadState(s.Root(), "team-a")
	require.NoError(t, err)
	assert.False(t, state.InReview())
	assert.False(t, state.LastReviewAt.IsZero())
}

func TestCleanup_ClearsStaleGuardOnTimeout(t *testing.T) {
	s := newTestStore(t)
	m := New(s, nil, nil)
	team := config.Team{ID: "team-a", Orchestrator: "orchestrator-a"}
	now := time.Now().UTC()

	_, err := m.Fire(team, config.Trigger{Type: TriggerQueueEmpty}, now)
	require.NoError(t, err)

	require.NoError(t, m.Cleanup("team-a", now.Add(time.Hour), 30*time.Minute))

	state, err := LoadState(s.Root(), "team-a")
	require.NoError(t, err)
	assert.False(t, state.InReview(), "a review older than the timeout must be cleared")
}

func TestCleanup_LeavesFreshGuardInPlace(t *testing.T) {
	s := newTestStore(t)
	m := New(s, nil, nil)
	team := config.Team{ID: "team-a", Orchestrator: "orchestrator-a"}
	now := time.Now().UTC()

	_, err := m.Fire(team, config.Trigger{Type: TriggerQueueEmpty}, now)
	require.NoError(t, err)

	require.NoError(t, m.Cleanup("team-a", now.Add(time.Minute), 30*time.Minute))

	state, err := LoadState(s.Root(), "team-a")
	require.NoError(t, err)
	assert.True(t, state.InReview(), "a review within the timeout window must survive cleanup")
}

func TestOnTaskDone_IncrementsCompletionCounter(t *testing.T) {
	s := newTestStore(t)
	m := New(s, nil, nil)
	require.NoError(t, m.OnTaskDone("team-a"))
	require.NoError(t, m.OnTaskDone("team-a"))

	state, err := LoadState(s.Root(), "team-a")
	require.NoError(t, err)
	assert.Equal(t, 2, state.CompletionsSinceLastReview)
}
