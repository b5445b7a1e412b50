package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/task"
)

func sampleOrg() *config.OrgChart {
	return &config.OrgChart{Teams: []config.Team{
		{ID: "team-a", Agents: []config.Agent{
			{ID: "agent-1", Role: "engineer", Active: true},
			{ID: "agent-2", Role: "reviewer", Active: false},
		}},
		{ID: "team-b", Agents: []config.Agent{
			{ID: "agent-3", Role: "engineer", Active: true},
		}},
	}}
}

func TestResolveAgent_ByExplicitAgent(t *testing.T) {
	org := sampleOrg()
	tk := &task.Task{Routing: task.Routing{Agent: "agent-1"}}
	agentID, teamID, ok := ResolveAgent(tk, org)
	assert.True(t, ok)
	assert.Equal(t, "agent-1", agentID)
	assert.Equal(t, "team-a", teamID)
}

func TestResolveAgent_ExplicitAgentUnknownPassesThrough(t *testing.T) {
	org := sampleOrg()
	tk := &task.Task{Routing: task.Routing{Agent: "ghost-agent", Team: "team-a"}}
	agentID, teamID, ok := ResolveAgent(tk, org)
	assert.True(t, ok)
	assert.Equal(t, "ghost-agent", agentID)
	assert.Equal(t, "team-a", teamID)
}

func TestResolveAgent_ByRoleFindsFirstActive(t *testing.T) {
	org := sampleOrg()
	tk := &task.Task{Routing: task.Routing{Role: "engineer"}}
	agentID, teamID, ok := ResolveAgent(tk, org)
	assert.True(t, ok)
	assert.Equal(t, "agent-1", agentID)
	assert.Equal(t, "team-a", teamID)
}

func TestResolveAgent_ByRoleSkipsInactive(t *testing.T) {
	org := sampleOrg()
	tk := &task.Task{Routing: task.Routing{Role: "reviewer"}}
	_, _, ok := ResolveAgent(tk, org)
	assert.False(t, ok, "agent-2 is inactive and no other reviewer exists")
}

func TestResolveAgent_ByTeamFindsFirstActiveMember(t *testing.T) {
	org := sampleOrg()
	tk := &task.Task{Routing: task.Routing{Team: "team-b"}}
	agentID, teamID, ok := ResolveAgent(tk, org)
	assert.True(t, ok)
	assert.Equal(t, "agent-3", agentID)
	assert.Equal(t, "team-b", teamID)
}

func TestResolveAgent_NoRoutingHintsFails(t *testing.T) {
	org := sampleOrg()
	tk := &task.Task{}
	_, _, ok := ResolveAgent(tk, org)
	assert.False(t, ok)
}
