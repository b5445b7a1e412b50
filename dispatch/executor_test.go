package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/gateway"
	"github.com/c360studio/aof/gateway/mock"
	"github.com/c360studio/aof/lease"
	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

func newExecutorFixture(t *testing.T, maxRetries int) (*Executor, *store.Store, *mock.Gateway) {
	t.Helper()
	root := t.TempDir()
	emit := events.NewLogger(root, nil)
	s := store.New(root, nil, emit)
	require.NoError(t, s.EnsureLayout())
	leases := lease.New(s)
	gw := mock.New()
	th := NewThrottle(Limits{MaxConcurrentDispatches: 10, MaxDispatchesPerPoll: 10})
	th.BeginPoll()
	exec := NewExecutor(s, leases, gw, th, emit, nil, maxRetries)
	return exec, s, gw
}

func sampleOrgWithAgent() *config.OrgChart {
	return &config.OrgChart{Teams: []config.Team{
		{ID: "team-a", Agents: []config.Agent{{ID: "agent-1", Role: "engineer", Active: true}}},
	}}
}

func TestExecutor_Dispatch_SuccessfulAssign(t *testing.T) {
	exec, s, gw := newExecutorFixture(t, 3)
	org := sampleOrgWithAgent()

	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true, Routing: task.Routing{Agent: "agent-1"}})
	require.NoError(t, err)

	out, err := exec.Dispatch(context.Background(), created, org, 0, time.Now().UTC(), false)
	require.NoError(t, err)
	assert.Equal(t, "assign", out.Action)
	assert.Equal(t, "agent-1", out.Agent)
	assert.Len(t, gw.Calls, 1)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status)
	require.NotNil(t, got.Lease)
	assert.Equal(t, "agent-1", got.Lease.Agent)
}

func TestExecutor_Dispatch_DryRunDoesNotMutateOrCallGateway(t *testing.T) {
	exec, s, gw := newExecutorFixture(t, 3)
	org := sampleOrgWithAgent()

	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true, Routing: task.Routing{Agent: "agent-1"}})
	require.NoError(t, err)

	out, err := exec.Dispatch(context.Background(), created, org, 0, time.Now().UTC(), true)
	require.NoError(t, err)
	assert.Equal(t, "assign", out.Action)
	assert.Empty(t, gw.Calls, "dry run must not call the gateway")

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusReady, got.Status)
}

func TestExecutor_Dispatch_UnresolvedAgentReturnsUnassigned(t *testing.T) {
	exec, s, _ := newExecutorFixture(t, 3)
	org := &config.OrgChart{}

	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true})
	require.NoError(t, err)

	out, err := exec.Dispatch(context.Background(), created, org, 0, time.Now().UTC(), false)
	require.NoError(t, err)
	assert.Equal(t, "unassigned", out.Action)
}

func TestExecutor_Dispatch_TransientFailureBlocksWithRetryCount(t *testing.T) {
	exec, s, gw := newExecutorFixture(t, 3)
	org := sampleOrgWithAgent()
	gw.Default = gateway.SpawnResult{Success: false, Error: "gateway timeout"}

	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true, Routing: task.Routing{Agent: "agent-1"}})
	require.NoError(t, err)

	out, err := exec.Dispatch(context.Background(), created, org, 0, time.Now().UTC(), false)
	require.NoError(t, err)
	assert.Equal(t, "blocked", out.Action)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusBlocked, got.Status)
	assert.Equal(t, 1, got.Metadata.GetInt(task.MetaRetryCount))
	assert.Equal(t, string(ClassTransient), got.Metadata.GetString(task.MetaErrorClass))
}

func TestExecutor_Dispatch_PermanentFailureDeadlettersImmediately(t *testing.T) {
	exec, s, gw := newExecutorFixture(t, 3)
	org := sampleOrgWithAgent()
	gw.Default = gateway.SpawnResult{Success: false, Error: "403 forbidden"}

	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true, Routing: task.Routing{Agent: "agent-1"}})
	require.NoError(t, err)

	out, err := exec.Dispatch(context.Background(), created, org, 0, time.Now().UTC(), false)
	require.NoError(t, err)
	assert.Equal(t, "deadletter", out.Action)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDeadletter, got.Status)
}

func TestExecutor_Dispatch_ExhaustedRetriesDeadletters(t *testing.T) {
	exec, s, gw := newExecutorFixture(t, 2)
	org := sampleOrgWithAgent()
	gw.Default = gateway.SpawnResult{Success: false, Error: "connection refused"}

	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true, Routing: task.Routing{Agent: "agent-1"}})
	require.NoError(t, err)
	_, err = s.Update(created.ID, func(ut *task.Task) {
		ut.Metadata[task.MetaRetryCount] = 1 // one failure already recorded; this attempt is the 2nd
	})
	require.NoError(t, err)
	created, err = s.Get(created.ID)
	require.NoError(t, err)

	out, err := exec.Dispatch(context.Background(), created, org, 0, time.Now().UTC(), false)
	require.NoError(t, err)
	assert.Equal(t, "deadletter", out.Action)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDeadletter, got.Status)
}

func TestExecutor_Dispatch_ThrottledWhenOverConcurrencyLimit(t *testing.T) {
	root := t.TempDir()
	emit := events.NewLogger(root, nil)
	s := store.New(root, nil, emit)
	require.NoError(t, s.EnsureLayout())
	leases := lease.New(s)
	gw := mock.New()
	th := NewThrottle(Limits{MaxConcurrentDispatches: 1, MaxDispatchesPerPoll: 10})
	th.BeginPoll()
	exec := NewExecutor(s, leases, gw, th, emit, nil, 3)
	org := sampleOrgWithAgent()

	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true, Routing: task.Routing{Agent: "agent-1"}})
	require.NoError(t, err)

	out, err := exec.Dispatch(context.Background(), created, org, 1, time.Now().UTC(), false)
	require.NoError(t, err)
	assert.Equal(t, "throttled", out.Action)
	assert.Empty(t, gw.Calls)
}
