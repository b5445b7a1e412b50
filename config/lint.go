package config

import "fmt"

// Issue is one manifest/org-chart lint finding (§9: "lint issues carry
// {rule, severity, message, path}").
type Issue struct {
	Rule     string
	Severity string // "error" | "warning"
	Message  string
	Path     string
}

// LintOrgChart enforces: no circular reportsTo chains, no dangling routing
// targets implied by team/agent ids, and target<warn<critical budget
// ordering.
func LintOrgChart(o *OrgChart) []Issue {
	var issues []Issue

	agentsByID := map[string]Agent{}
	for _, team := range o.Teams {
		for _, a := range team.Agents {
			if _, dup := agentsByID[a.ID]; dup {
				issues = append(issues, Issue{Rule: "duplicate-agent", Severity: "error",
					Message: fmt.Sprintf("agent id %q appears more than once", a.ID), Path: "org/org-chart.yaml"})
			}
			agentsByID[a.ID] = a
		}
	}

	for _, a := range agentsByID {
		b := a.Policies.Context
		if b != (ContextBudget{}) && !(b.Target < b.Warn && b.Warn < b.Critical) {
			issues = append(issues, Issue{Rule: "inverted-budget-thresholds", Severity: "error",
				Message: fmt.Sprintf("agent %q context budget must satisfy target<warn<critical, got %d<%d<%d", a.ID, b.Target, b.Warn, b.Critical),
				Path: "org/org-chart.yaml"})
		}

		if a.ReportsTo == "" {
			continue
		}
		if cyclicReportsTo(agentsByID, a.ID, map[string]bool{}) {
			issues = append(issues, Issue{Rule: "circular-reportsto", Severity: "error",
				Message: fmt.Sprintf("agent %q has a circular reportsTo chain", a.ID), Path: "org/org-chart.yaml"})
		}
		if _, ok := agentsByID[a.ReportsTo]; !ok {
			issues = append(issues, Issue{Rule: "dangling-reportsto", Severity: "error",
				Message: fmt.Sprintf("agent %q reportsTo unknown agent %q", a.ID, a.ReportsTo), Path: "org/org-chart.yaml"})
		}
	}

	for _, team := range o.Teams {
		if team.Orchestrator != "" {
			if _, ok := agentsByID[team.Orchestrator]; !ok {
				issues = append(issues, Issue{Rule: "dangling-orchestrator", Severity: "error",
					Message: fmt.Sprintf("team %q orchestrator %q is not a known agent", team.ID, team.Orchestrator), Path: "org/org-chart.yaml"})
			}
		}
		for _, trig := range team.Murmur.Triggers {
			switch trig.Type {
			case "queueEmpty", "completionBatch", "failureBatch":
			default:
				issues = append(issues, Issue{Rule: "unknown-trigger-type", Severity: "error",
					Message: fmt.Sprintf("team %q has unknown murmur trigger type %q", team.ID, trig.Type), Path: "org/org-chart.yaml"})
			}
		}
	}

	return issues
}

func cyclicReportsTo(agents map[string]Agent, start string, seen map[string]bool) bool {
	cur := start
	for {
		if seen[cur] {
			return cur == start
		}
		seen[cur] = true
		a, ok := agents[cur]
		if !ok || a.ReportsTo == "" {
			return false
		}
		if a.ReportsTo == start {
			return true
		}
		cur = a.ReportsTo
	}
}

// LintProject validates the project manifest: rejectionStrategy must be
// "origin" (§9 Open Question), and the workflow's first gate must never
// have canReject=true.
func LintProject(p *Project) []Issue {
	var issues []Issue
	if !p.HasWorkflow() {
		return issues
	}

	if p.Workflow.RejectionStrategy != "" && p.Workflow.RejectionStrategy != "origin" {
		issues = append(issues, Issue{Rule: "invalid-rejection-strategy", Severity: "error",
			Message: fmt.Sprintf("rejectionStrategy %q is not supported; only \"origin\" is implemented", p.Workflow.RejectionStrategy),
			Path: "project.yaml"})
	}

	if len(p.Workflow.Gates) > 0 && p.Workflow.Gates[0].CanReject {
		issues = append(issues, Issue{Rule: "first-gate-canreject", Severity: "error",
			Message: "the first gate in a workflow must not set canReject=true", Path: "project.yaml"})
	}

	seen := map[string]bool{}
	for _, g := range p.Workflow.Gates {
		if seen[g.ID] {
			issues = append(issues, Issue{Rule: "duplicate-gate", Severity: "error",
				Message: fmt.Sprintf("gate id %q appears more than once in the workflow", g.ID), Path: "project.yaml"})
		}
		seen[g.ID] = true
	}

	return issues
}
