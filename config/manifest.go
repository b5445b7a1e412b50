// Package config loads and validates the project manifest and org chart
// that configure an aof data directory (§3, §6).
package config

import (
	"time"

	"github.com/c360studio/aof/gate"
)

// SLA carries the default and role-specific in-progress time limits the SLA
// checker enforces (§4.10).
type SLA struct {
	DefaultMaxInProgressMs   int64 `yaml:"defaultMaxInProgressMs,omitempty"`
	ResearchMaxInProgressMs  int64 `yaml:"researchMaxInProgressMs,omitempty"`
	RateLimitMinutes         int   `yaml:"rateLimitMinutes,omitempty"`
}

// DefaultMaxInProgress, ResearchMaxInProgress and DefaultRateLimitMins are the hardcoded fallbacks
// when a project manifest does not set an SLA value (§4.10: 1h / 4h).
const (
	DefaultMaxInProgress  = time.Hour
	ResearchMaxInProgress = 4 * time.Hour
	DefaultRateLimitMins  = 15
)

// Project is the top-level project manifest (project.yaml).
type Project struct {
	ID    string       `yaml:"id" validate:"required"`
	Type  string       `yaml:"type,omitempty"`
	Owner string       `yaml:"owner,omitempty"`
	SLA   SLA          `yaml:"sla,omitempty"`
	Workflow *WorkflowManifest `yaml:"workflow,omitempty"`
}

// WorkflowManifest is the YAML shape of a project's configured workflow; it
// converts to gate.Workflow after validation.
type WorkflowManifest struct {
	Gates             []gate.Def `yaml:"gates"`
	RejectionStrategy string     `yaml:"rejectionStrategy"`
}

// ToGateWorkflow converts a validated WorkflowManifest into a gate.Workflow.
func (w *WorkflowManifest) ToGateWorkflow() gate.Workflow {
	if w == nil {
		return gate.Workflow{}
	}
	return gate.Workflow{Gates: w.Gates, RejectionStrategy: gate.RejectionStrategy(w.RejectionStrategy)}
}

// HasWorkflow reports whether the project configures a multi-gate workflow.
func (p *Project) HasWorkflow() bool {
	return p.Workflow != nil && len(p.Workflow.Gates) > 0
}
