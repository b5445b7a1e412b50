// Package task defines the orchestration engine's primary entity: the Task
// record and its structured attributes.
package task

import "time"

// Status is the lifecycle bucket a task currently occupies. Status doubles
// as the directory name under tasks/ in the store's filesystem layout.
type Status string

// Allowed statuses, per the lifecycle edges in the data model.
const (
	StatusBacklog    Status = "backlog"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusDeadletter Status = "deadletter"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses lists every bucket the store scans, in a stable order.
var AllStatuses = []Status{
	StatusBacklog, StatusReady, StatusInProgress, StatusReview,
	StatusBlocked, StatusDone, StatusDeadletter, StatusCancelled,
}

// Terminal reports whether the status has no further outbound transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusCancelled, StatusDeadletter:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Priority is a coarse scheduling hint; the scheduler does not itself use it
// for ordering beyond what routing/dispatch callers choose to apply.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// Routing carries the optional hints the dispatch assigner uses to resolve
// an agent for a ready task.
type Routing struct {
	Agent    string   `yaml:"agent,omitempty" json:"agent,omitempty"`
	Role     string   `yaml:"role,omitempty" json:"role,omitempty"`
	Team     string   `yaml:"team,omitempty" json:"team,omitempty"`
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Workflow string   `yaml:"workflow,omitempty" json:"workflow,omitempty"`
}

// Lease records single-agent ownership of a task being processed. A task has
// a Lease if and only if it is in-progress (store.Transition enforces this).
type Lease struct {
	Agent      string    `yaml:"agent" json:"agent"`
	AcquiredAt time.Time `yaml:"acquiredAt" json:"acquiredAt"`
	ExpiresAt  time.Time `yaml:"expiresAt" json:"expiresAt"`
	RenewCount int       `yaml:"renewCount" json:"renewCount"`
}

// Gate records which workflow stage a task currently occupies.
type Gate struct {
	Current string    `yaml:"current" json:"current"`
	Entered time.Time `yaml:"entered" json:"entered"`
}

// GateHistoryEntry is one append-only record of a task's visit to a gate.
// GateHistory as a whole only ever grows; entries are never mutated.
type GateHistoryEntry struct {
	Gate     string        `yaml:"gate" json:"gate"`
	Role     string        `yaml:"role,omitempty" json:"role,omitempty"`
	Agent    string        `yaml:"agent,omitempty" json:"agent,omitempty"`
	Entered  time.Time     `yaml:"entered" json:"entered"`
	Exited   time.Time     `yaml:"exited,omitzero" json:"exited,omitempty"`
	Outcome  string        `yaml:"outcome,omitempty" json:"outcome,omitempty"`
	Summary  string        `yaml:"summary,omitempty" json:"summary,omitempty"`
	Blockers []string      `yaml:"blockers,omitempty" json:"blockers,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty" json:"duration,omitempty"`
}

// ReviewContext is set when a gate rejects a task back to an earlier stage.
type ReviewContext struct {
	FromGate  string    `yaml:"fromGate" json:"fromGate"`
	FromAgent string    `yaml:"fromAgent,omitempty" json:"fromAgent,omitempty"`
	FromRole  string    `yaml:"fromRole,omitempty" json:"fromRole,omitempty"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Blockers  []string  `yaml:"blockers,omitempty" json:"blockers,omitempty"`
	Notes     string    `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// Reserved metadata keys. Metadata is an open map; these keys carry specific
// meaning to the scheduler/dispatch/protocol layers and are validated on
// write where the type matters, everything else passes through untouched.
const (
	MetaDispatchFailures = "dispatchFailures"
	MetaRetryCount       = "retryCount"
	MetaLastBlockedAt    = "lastBlockedAt"
	MetaBlockReason      = "blockReason"
	MetaErrorClass       = "errorClass"
	MetaCorrelationID    = "correlationId"
	MetaSessionID        = "sessionId"
	MetaKind             = "kind"
	MetaDelegationDepth  = "delegationDepth"
	MetaParentTaskID     = "parentTaskId"
)

// Metadata is the open attribute bag attached to a task.
type Metadata map[string]any

// GetString returns the string value for key, or "" if absent or not a string.
func (m Metadata) GetString(key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetInt returns the int value for key, or 0 if absent or not numeric.
func (m Metadata) GetInt(key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Task is the primary entity tracked by the store.
type Task struct {
	ID       string   `yaml:"id" json:"id"`
	Title    string   `yaml:"title" json:"title"`
	Status   Status   `yaml:"status" json:"status"`
	Priority Priority `yaml:"priority" json:"priority"`

	Routing   Routing  `yaml:"routing,omitempty" json:"routing,omitempty"`
	DependsOn []string `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`

	Lease *Lease `yaml:"lease,omitempty" json:"lease,omitempty"`
	Gate  *Gate  `yaml:"gate,omitempty" json:"gate,omitempty"`

	GateHistory   []GateHistoryEntry `yaml:"gateHistory,omitempty" json:"gateHistory,omitempty"`
	ReviewContext *ReviewContext     `yaml:"reviewContext,omitempty" json:"reviewContext,omitempty"`

	Metadata Metadata `yaml:"metadata,omitempty" json:"metadata,omitempty"`

	CreatedAt        time.Time `yaml:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time `yaml:"updatedAt" json:"updatedAt"`
	LastTransitionAt time.Time `yaml:"lastTransitionAt" json:"lastTransitionAt"`
	CreatedBy        string    `yaml:"createdBy,omitempty" json:"createdBy,omitempty"`

	Body string `yaml:"-" json:"body"`

	// Unknown carries any top-level frontmatter fields this version of the
	// schema does not recognize, so a round trip through Decode/Encode never
	// silently drops data written by a newer or hand-edited record.
	Unknown map[string]any `yaml:"-" json:"-"`
}

// Clone returns a deep-enough copy of t for safe mutation by callers that
// must not alias the store's in-memory representation.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Lease != nil {
		l := *t.Lease
		cp.Lease = &l
	}
	if t.Gate != nil {
		g := *t.Gate
		cp.Gate = &g
	}
	if t.ReviewContext != nil {
		rc := *t.ReviewContext
		rc.Blockers = append([]string(nil), t.ReviewContext.Blockers...)
		cp.ReviewContext = &rc
	}
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	cp.GateHistory = append([]GateHistoryEntry(nil), t.GateHistory...)
	cp.Routing.Tags = append([]string(nil), t.Routing.Tags...)
	cp.Metadata = make(Metadata, len(t.Metadata))
	for k, v := range t.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// HasTag reports whether the task's routing tags include tag.
func (t *Task) HasTag(tag string) bool {
	for _, tg := range t.Routing.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}
