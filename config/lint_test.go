package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/aof/gate"
)

func issueRules(issues []Issue) []string {
	rules := make([]string, len(issues))
	for i, iss := range issues {
		rules[i] = iss.Rule
	}
	return rules
}

func TestLintOrgChart_DuplicateAgentID(t *testing.T) {
	o := &OrgChart{Teams: []Team{
		{ID: "team-a", Agents: []Agent{{ID: "agent-1", Role: "engineer"}}},
		{ID: "team-b", Agents: []Agent{{ID: "agent-1", Role: "reviewer"}}},
	}}
	issues := LintOrgChart(o)
	assert.Contains(t, issueRules(issues), "duplicate-agent")
}

func TestLintOrgChart_CircularReportsTo(t *testing.T) {
	o := &OrgChart{Teams: []Team{
		{ID: "team-a", Agents: []Agent{
			{ID: "agent-1", Role: "engineer", ReportsTo: "agent-2"},
			{ID: "agent-2", Role: "lead", ReportsTo: "agent-1"},
		}},
	}}
	issues := LintOrgChart(o)
	assert.Contains(t, issueRules(issues), "circular-reportsto")
}

func TestLintOrgChart_DanglingReportsTo(t *testing.T) {
	o := &OrgChart{Teams: []Team{
		{ID: "team-a", Agents: []Agent{{ID: "agent-1", Role: "engineer", ReportsTo: "ghost"}}},
	}}
	issues := LintOrgChart(o)
	assert.Contains(t, issueRules(issues), "dangling-reportsto")
}

func TestLintOrgChart_InvertedBudgetThresholds(t *testing.T) {
	o := &OrgChart{Teams: []Team{
		{ID: "team-a", Agents: []Agent{
			{ID: "agent-1", Role: "engineer", Policies: AgentPolicies{
				Context: ContextBudget{Target: 8000, Warn: 4000, Critical: 10000},
			}},
		}},
	}}
	issues := LintOrgChart(o)
	assert.Contains(t, issueRules(issues), "inverted-budget-thresholds")
}

func TestLintOrgChart_ValidBudgetThresholdsPass(t *testing.T) {
	o := &OrgChart{Teams: []Team{
		{ID: "team-a", Agents: []Agent{
			{ID: "agent-1", Role: "engineer", Policies: AgentPolicies{
				Context: ContextBudget{Target: 4000, Warn: 8000, Critical: 10000},
			}},
		}},
	}}
	issues := LintOrgChart(o)
	assert.NotContains(t, issueRules(issues), "inverted-budget-thresholds")
}

func TestLintOrgChart_DanglingOrchestrator(t *testing.T) {
	o := &OrgChart{Teams: []Team{
		{ID: "team-a", Orchestrator: "ghost", Agents: []Agent{{ID: "agent-1", Role: "engineer"}}},
	}}
	issues := LintOrgChart(o)
	assert.Contains(t, issueRules(issues), "dangling-orchestrator")
}

func TestLintOrgChart_UnknownTriggerType(t *testing.T) {
	o := &OrgChart{Teams: []Team{
		{ID: "team-a", Murmur: MurmurConfig{Triggers: []Trigger{{Type: "onFullMoon"}}}},
	}}
	issues := LintOrgChart(o)
	assert.Contains(t, issueRules(issues), "unknown-trigger-type")
}

func TestLintOrgChart_CleanChartHasNoIssues(t *testing.T) {
	o := &OrgChart{Teams: []Team{
		{ID: "team-a", Orchestrator: "lead-1", Agents: []Agent{
			{ID: "lead-1", Role: "lead", Active: true},
			{ID: "agent-1", Role: "engineer", Active: true, ReportsTo: "lead-1"},
		}, Murmur: MurmurConfig{Triggers: []Trigger{{Type: "queueEmpty"}}}},
	}}
	assert.Empty(t, LintOrgChart(o))
}

func TestLintProject_RejectsUnsupportedRejectionStrategy(t *testing.T) {
	p := &Project{ID: "proj-1", Workflow: &WorkflowManifest{
		Gates:             []gate.Def{{ID: "draft"}},
		RejectionStrategy: "nearest",
	}}
	issues := LintProject(p)
	assert.Contains(t, issueRules(issues), "invalid-rejection-strategy")
}

func TestLintProject_RejectsFirstGateCanReject(t *testing.T) {
	p := &Project{ID: "proj-1", Workflow: &WorkflowManifest{
		Gates: []gate.Def{{ID: "draft", CanReject: true}},
	}}
	issues := LintProject(p)
	assert.Contains(t, issueRules(issues), "first-gate-canreject")
}

func TestLintProject_RejectsDuplicateGateID(t *testing.T) {
	p := &Project{ID: "proj-1", Workflow: &WorkflowManifest{
		Gates: []gate.Def{{ID: "draft"}, {ID: "draft"}},
	}}
	issues := LintProject(p)
	assert.Contains(t, issueRules(issues), "duplicate-gate")
}

func TestLintProject_NoWorkflowIsClean(t *testing.T) {
	p := &Project{ID: "proj-1"}
	assert.Empty(t, LintProject(p))
}

func TestLintProject_ValidWorkflowIsClean(t *testing.T) {
	p := &Project{ID: "proj-1", Workflow: &WorkflowManifest{
		Gates:             []gate.Def{{ID: "draft"}, {ID: "review", CanReject: true}},
		RejectionStrategy: "origin",
	}}
	assert.Empty(t, LintProject(p))
}
