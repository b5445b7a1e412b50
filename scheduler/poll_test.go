package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/dispatch"
	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/gateway"
	"github.com/c360studio/aof/gateway/mock"
	"github.com/c360studio/aof/lease"
	"github.com/c360studio/aof/metrics"
	"github.com/c360studio/aof/murmur"
	"github.com/c360studio/aof/protocol"
	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

func newSchedulerFixture(t *testing.T, org *config.OrgChart, maxRetries int) (*Scheduler, *store.Store, *mock.Gateway) {
	t.Helper()
	root := t.TempDir()
	emit := events.NewLogger(root, nil)
	s := store.New(root, nil, emit)
	require.NoError(t, s.EnsureLayout())

	leases := lease.New(s)
	gw := mock.New()
	th := dispatch.NewThrottle(dispatch.Limits{MaxConcurrentDispatches: 10, MaxDispatchesPerPoll: 10})
	exec := dispatch.NewExecutor(s, leases, gw, th, emit, nil, maxRetries)
	mur := murmur.New(s, emit, nil)
	project := &config.Project{SLA: config.SLA{DefaultMaxInProgressMs: 3_600_000}}
	sla := metrics.NewChecker(project, org, emit, nil)

	sched := &Scheduler{
		Store:    s,
		Leases:   leases,
		Gateway:  gw,
		Throttle: th,
		Executor: exec,
		Murmur:   mur,
		SLA:      sla,
		Metrics:  metrics.NewRegistry(),
		Events:   emit,
		Project:  project,
		OrgChart: org,
	}
	return sched, s, gw
}

func soloAgentOrg() *config.OrgChart {
	return &config.OrgChart{Teams: []config.Team{
		{ID: "team-a", Orchestrator: "lead-1", Agents: []config.Agent{
			{ID: "agent-1", Role: "engineer", Active: true},
		}},
	}}
}

// S1: happy-path dispatch — a ready task with a resolvable agent is
// assigned and moved to in-progress with a lease in one poll.
func TestPoll_HappyPathDispatch(t *testing.T) {
	sched, s, gw := newSchedulerFixture(t, soloAgentOrg(), 3)
	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true, Routing: task.Routing{Agent: "agent-1", Team: "team-a"}})
	require.NoError(t, err)

	result, err := sched.Poll(context.Background(), Config{Now: time.Now().UTC()})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ActionsExecuted)
	assert.Len(t, gw.Calls, 1)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status)
	require.NotNil(t, got.Lease)
	assert.Equal(t, "agent-1", got.Lease.Agent)
}

// S2: a transient spawn failure blocks the task with an incremented retry
// count and schedules it for requeue once the backoff window elapses.
func TestPoll_SpawnFailureBacksOffThenRequeues(t *testing.T) {
	sched, s, gw := newSchedulerFixture(t, soloAgentOrg(), 3)
	gw.Default = gateway.SpawnResult{Success: false, Error: "gateway timeout"}

	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true, Routing: task.Routing{Agent: "agent-1", Team: "team-a"}})
	require.NoError(t, err)

	now := time.Now().UTC()
	result, err := sched.Poll(context.Background(), Config{Now: now})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ActionsExecuted)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusBlocked, got.Status)
	assert.Equal(t, 1, got.Metadata.GetInt(task.MetaRetryCount))

	// Before the backoff window elapses, the task stays blocked.
	soon := now.Add(time.Second)
	_, err = sched.Poll(context.Background(), Config{Now: soon})
	require.NoError(t, err)
	got, err = s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusBlocked, got.Status)

	// Once the retry backoff has elapsed, the scheduler requeues it to
	// ready and, since the gateway still fails, blocks it again with an
	// incremented retry count.
	later := now.Add(20 * time.Minute)
	result, err = sched.Poll(context.Background(), Config{Now: later})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Actions)

	got, err = s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusBlocked, got.Status)
	assert.Equal(t, 2, got.Metadata.GetInt(task.MetaRetryCount))
}

// S3: a permanent spawn failure deadletters the task immediately, without
// ever retrying.
func TestPoll_PermanentFailureDeadlettersImmediately(t *testing.T) {
	sched, s, gw := newSchedulerFixture(t, soloAgentOrg(), 3)
	gw.Default = gateway.SpawnResult{Success: false, Error: "401 unauthorized"}

	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true, Routing: task.Routing{Agent: "agent-1", Team: "team-a"}})
	require.NoError(t, err)

	result, err := sched.Poll(context.Background(), Config{Now: time.Now().UTC()})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ActionsExecuted)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDeadletter, got.Status)
}

// S6: murmur fires at most once per idle window — repeated polls over an
// empty team queue must not create more than one review task.
func TestPoll_MurmurIdempotentAcrossPolls(t *testing.T) {
	org := &config.OrgChart{Teams: []config.Team{
		{ID: "team-a", Orchestrator: "lead-1", Murmur: config.MurmurConfig{
			Triggers: []config.Trigger{{Type: murmur.TriggerQueueEmpty}},
		}},
	}}
	sched, s, _ := newSchedulerFixture(t, org, 3)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := sched.Poll(context.Background(), Config{Now: now.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	all, err := s.List()
	require.NoError(t, err)
	var reviewTasks int
	for _, tk := range all {
		if tk.Routing.Team == "team-a" && tk.Routing.Agent == "lead-1" {
			reviewTasks++
		}
	}
	assert.Equal(t, 1, reviewTasks, "murmur must create exactly one outstanding review task")
}

// Dry-run polls must plan actions without mutating the store or calling the
// gateway.
func TestPoll_DryRunDoesNotMutateStore(t *testing.T) {
	sched, s, gw := newSchedulerFixture(t, soloAgentOrg(), 3)
	created, err := s.Create(store.CreateInput{Title: "T1", StartReady: true, Routing: task.Routing{Agent: "agent-1", Team: "team-a"}})
	require.NoError(t, err)

	result, err := sched.Poll(context.Background(), Config{Now: time.Now().UTC(), DryRun: true})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Actions)
	assert.Empty(t, gw.Calls)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusReady, got.Status)
}

// Promotion: a blocked-on-dependency task in backlog is promoted to ready by
// the promotion pass of the first poll after its dependency completes.
func TestPoll_PromotesDependentTaskAfterDependencyCompletes(t *testing.T) {
	sched, s, _ := newSchedulerFixture(t, soloAgentOrg(), 3)

	dep, err := s.Create(store.CreateInput{Title: "Dep", StartReady: true, Routing: task.Routing{Agent: "agent-1", Team: "team-a"}})
	require.NoError(t, err)
	dependent, err := s.Create(store.CreateInput{Title: "Dependent", DependsOn: []string{dep.ID}})
	require.NoError(t, err)

	_, err = sched.Poll(context.Background(), Config{Now: time.Now().UTC()})
	require.NoError(t, err)

	depAfter, err := s.Get(dep.ID)
	require.NoError(t, err)
	require.Equal(t, task.StatusInProgress, depAfter.Status)

	err = protocol.ApplyCompletion(s, nil, dep.ID, "agent-1", protocol.CompletionReportPayload{Outcome: "done"}, time.Now().UTC(), nil)
	require.NoError(t, err)

	_, err = sched.Poll(context.Background(), Config{Now: time.Now().UTC()})
	require.NoError(t, err)

	dependentAfter, err := s.Get(dependent.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusReady, dependentAfter.Status, "dependent promotes to ready once its dependency completes")
}
