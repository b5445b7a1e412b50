package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/task"
)

// researcherRole is the agent role whose in-progress tasks get the longer
// SLA window (§4.10).
const researcherRole = "researcher"

// Violation is one SLA breach found by Check.
type Violation struct {
	TaskID   string
	Duration time.Duration
	Limit    time.Duration
}

// Checker evaluates per-task in-progress duration against the effective SLA
// limit and rate-limits repeat alerts per task.
type Checker struct {
	project *config.Project
	org     *config.OrgChart
	events  *events.Logger
	metrics *Registry

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewChecker builds a Checker. metrics may be nil in tests that don't assert
// counter values.
func NewChecker(project *config.Project, org *config.OrgChart, emit *events.Logger, m *Registry) *Checker {
	return &Checker{project: project, org: org, events: emit, metrics: m, lastAlert: map[string]time.Time{}}
}

// EffectiveLimit resolves the in-progress time limit for t: its own
// sla.maxInProgressMs override, else the project's researcher/default limit
// by the resolved agent's role (routing.role when the agent is not in the
// org chart), else the hardcoded package defaults.
func (c *Checker) EffectiveLimit(t *task.Task) time.Duration {
	if ms := t.Metadata.GetInt("sla.maxInProgressMs"); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}

	isResearcher := t.Routing.Role == researcherRole
	if c.org != nil {
		if a, _, ok := c.org.FindAgent(t.Routing.Agent); ok {
			isResearcher = a.Role == researcherRole
		}
	}

	if c.project != nil {
		if isResearcher && c.project.SLA.ResearchMaxInProgressMs > 0 {
			return time.Duration(c.project.SLA.ResearchMaxInProgressMs) * time.Millisecond
		}
		if !isResearcher && c.project.SLA.DefaultMaxInProgressMs > 0 {
			return time.Duration(c.project.SLA.DefaultMaxInProgressMs) * time.Millisecond
		}
	}

	if isResearcher {
		return config.ResearchMaxInProgress
	}
	return config.DefaultMaxInProgress
}

// rateLimitMinutes resolves the per-task alert rate limit.
func (c *Checker) rateLimitMinutes() int {
	if c.project != nil && c.project.SLA.RateLimitMinutes > 0 {
		return c.project.SLA.RateLimitMinutes
	}
	return config.DefaultRateLimitMins
}

// Check evaluates every in-progress task and emits sla.violation for any
// whose duration exceeds its effective limit, honoring the per-task rate
// limit. Returns the violations found (rate-limited or not) for scheduler
// telemetry.
func (c *Checker) Check(inProgress []*task.Task, now time.Time) []Violation {
	var violations []Violation
	limit := time.Duration(c.rateLimitMinutes()) * time.Minute

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range inProgress {
		duration := now.Sub(t.UpdatedAt)
		max := c.EffectiveLimit(t)
		if duration <= max {
			continue
		}
		violations = append(violations, Violation{TaskID: t.ID, Duration: duration, Limit: max})

		if last, ok := c.lastAlert[t.ID]; ok && now.Sub(last) < limit {
			continue
		}
		c.lastAlert[t.ID] = now

		if c.metrics != nil {
			c.metrics.SLAViolationsTotal.Inc()
		}
		if c.events != nil {
			_, _ = c.events.Emit(events.TypeSLAViolation, "sla-checker", t.ID, map[string]any{
				"durationMs": duration.Milliseconds(),
				"limitMs":    max.Milliseconds(),
				"message":    fmt.Sprintf("task %s has been in-progress for %s, exceeding its %s limit", t.ID, humanize.RelTime(now.Add(-duration), now, "", ""), max),
			})
		}
	}

	return violations
}
