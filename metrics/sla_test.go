package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/task"
)

func TestEffectiveLimit_TaskOverrideWins(t *testing.T) {
	c := NewChecker(nil, nil, nil, nil)
	tk := &task.Task{Metadata: task.Metadata{"sla.maxInProgressMs": 5000}}
	assert.Equal(t, 5*time.Second, c.EffectiveLimit(tk))
}

func TestEffectiveLimit_ResearcherRoleFromOrgChart(t *testing.T) {
	org := &config.OrgChart{Teams: []config.Team{
		{ID: "team-a", Agents: []config.Agent{{ID: "agent-1", Role: "researcher"}}},
	}}
	project := &config.Project{SLA: config.SLA{ResearchMaxInProgressMs: 10_000, DefaultMaxInProgressMs: 1_000}}
	c := NewChecker(project, org, nil, nil)

	tk := &task.Task{Routing: task.Routing{Agent: "agent-1"}, Metadata: task.Metadata{}}
	assert.Equal(t, 10*time.Second, c.EffectiveLimit(tk))
}

func TestEffectiveLimit_DefaultRoleFromProject(t *testing.T) {
	project := &config.Project{SLA: config.SLA{ResearchMaxInProgressMs: 10_000, DefaultMaxInProgressMs: 2_000}}
	c := NewChecker(project, nil, nil, nil)

	tk := &task.Task{Metadata: task.Metadata{}}
	assert.Equal(t, 2*time.Second, c.EffectiveLimit(tk))
}

func TestEffectiveLimit_FallsBackToPackageDefaults(t *testing.T) {
	c := NewChecker(nil, nil, nil, nil)
	tk := &task.Task{Metadata: task.Metadata{}}
	assert.Equal(t, config.DefaultMaxInProgress, c.EffectiveLimit(tk))

	tk.Routing.Role = "researcher"
	assert.Equal(t, config.ResearchMaxInProgress, c.EffectiveLimit(tk))
}

func TestCheck_FindsViolationAndRateLimitsRepeat(t *testing.T) {
	project := &config.Project{SLA: config.SLA{DefaultMaxInProgressMs: 1_000, RateLimitMinutes: 15}}
	c := NewChecker(project, nil, nil, nil)

	now := time.Now().UTC()
	tk := &task.Task{ID: "TASK-2026-07-31-001", UpdatedAt: now.Add(-2 * time.Second), Metadata: task.Metadata{}}

	violations := c.Check([]*task.Task{tk}, now)
	require.Len(t, violations, 1)
	assert.Equal(t, tk.ID, violations[0].TaskID)

	// A second check within the rate-limit window still reports the
	// violation for scheduler telemetry but must not re-alert.
	violations = c.Check([]*task.Task{tk}, now.Add(time.Minute))
	require.Len(t, violations, 1)
}

func TestCheck_WithinLimitReportsNothing(t *testing.T) {
	project := &config.Project{SLA: config.SLA{DefaultMaxInProgressMs: 60_000}}
	c := NewChecker(project, nil, nil, nil)

	now := time.Now().UTC()
	tk := &task.Task{ID: "TASK-2026-07-31-002", UpdatedAt: now.Add(-time.Second), Metadata: task.Metadata{}}

	assert.Empty(t, c.Check([]*task.Task{tk}, now))
}
