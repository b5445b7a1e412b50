package config

// ContextBudget carries the character-budget thresholds an agent's context
// assembly is evaluated against (§3: target<warn<critical must hold).
type ContextBudget struct {
	Target   int `yaml:"target"`
	Warn     int `yaml:"warn"`
	Critical int `yaml:"critical"`
}

// AgentPolicies carries per-agent overrides.
type AgentPolicies struct {
	Context ContextBudget `yaml:"context,omitempty"`
}

// Agent is one roster entry under a team.
type Agent struct {
	ID        string        `yaml:"id" validate:"required"`
	Role      string        `yaml:"role" validate:"required"`
	Active    bool          `yaml:"active"`
	ReportsTo string        `yaml:"reportsTo,omitempty"`
	Policies  AgentPolicies `yaml:"policies,omitempty"`
}

// DispatchOverrides lets a team override the global throttle defaults.
type DispatchOverrides struct {
	MaxConcurrent int `yaml:"maxConcurrent,omitempty"`
	MinIntervalMs int `yaml:"minIntervalMs,omitempty"`
}

// Trigger is one murmur trigger condition (§4.8). Exactly one of Threshold
// fields is meaningful, keyed by Type.
type Trigger struct {
	Type      string `yaml:"type" validate:"required"` // queueEmpty | completionBatch | failureBatch
	Threshold int    `yaml:"threshold,omitempty"`
}

// MurmurConfig is a team's periodic-review configuration.
type MurmurConfig struct {
	Triggers          []Trigger `yaml:"triggers,omitempty"`
	ContextInclusion  []string  `yaml:"contextInclusion,omitempty"`
}

// Team is one roster entry in the org chart.
type Team struct {
	ID           string            `yaml:"id" validate:"required"`
	Orchestrator string            `yaml:"orchestrator,omitempty"`
	Agents       []Agent           `yaml:"agents,omitempty"`
	Dispatch     DispatchOverrides `yaml:"dispatch,omitempty"`
	Murmur       MurmurConfig      `yaml:"murmur,omitempty"`
}

// OrgChart is the full org/org-chart.yaml roster.
type OrgChart struct {
	Teams []Team `yaml:"teams"`
}

// FindAgent returns the agent with the given id across all teams.
func (o *OrgChart) FindAgent(id string) (Agent, string, bool) {
	for _, team := range o.Teams {
		for _, a := range team.Agents {
			if a.ID == id {
				return a, team.ID, true
			}
		}
	}
	return Agent{}, "", false
}

// FindTeam returns the team with the given id.
func (o *OrgChart) FindTeam(id string) (Team, bool) {
	for _, team := range o.Teams {
		if team.ID == id {
			return team, true
		}
	}
	return Team{}, false
}

// FirstActiveWithRole returns the first active agent in any team carrying
// role.
func (o *OrgChart) FirstActiveWithRole(role string) (Agent, bool) {
	for _, team := range o.Teams {
		for _, a := range team.Agents {
			if a.Active && a.Role == role {
				return a, true
			}
		}
	}
	return Agent{}, false
}

// FirstActiveInTeam returns the first active agent belonging to team.
func (o *OrgChart) FirstActiveInTeam(teamID string) (Agent, bool) {
	team, ok := o.FindTeam(teamID)
	if !ok {
		return Agent{}, false
	}
	for _, a := range team.Agents {
		if a.Active {
			return a, true
		}
	}
	return Agent{}, false
}
