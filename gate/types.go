// Package gate implements the pure gate-evaluator state machine (§4.6): a
// workflow is an ordered list of gates a task visits, and evaluate() decides
// where a task goes next given an agent-reported outcome.
package gate

// Def is one stage of a workflow.
type Def struct {
	ID           string `yaml:"id" json:"id"`
	Role         string `yaml:"role" json:"role"`
	CanReject    bool   `yaml:"canReject" json:"canReject"`
	When         string `yaml:"when,omitempty" json:"when,omitempty"`
	RequireHuman bool   `yaml:"requireHuman,omitempty" json:"requireHuman,omitempty"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
}

// RejectionStrategy names where a needs_review outcome sends a task. Only
// "origin" is implemented (§9 Open Question): all rejections return to the
// first gate.
type RejectionStrategy string

// Origin is the only supported rejection strategy.
const Origin RejectionStrategy = "origin"

// Workflow is an ordered sequence of gates defined on a project manifest.
type Workflow struct {
	Gates             []Def             `yaml:"gates" json:"gates"`
	RejectionStrategy RejectionStrategy `yaml:"rejectionStrategy" json:"rejectionStrategy"`
}

// ByID returns the gate definition with the given id, if any.
func (w Workflow) ByID(id string) (Def, bool) {
	for _, g := range w.Gates {
		if g.ID == id {
			return g, true
		}
	}
	return Def{}, false
}

// Index returns the position of the gate with the given id, or -1.
func (w Workflow) Index(id string) int {
	for i, g := range w.Gates {
		if g.ID == id {
			return i
		}
	}
	return -1
}

// Outcome is an agent's reported result for the current gate.
type Outcome string

const (
	OutcomeComplete     Outcome = "complete"
	OutcomeNeedsReview  Outcome = "needs_review"
	OutcomeBlocked      Outcome = "blocked"
)
