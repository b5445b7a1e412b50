// Package gateway defines the three-method executor/gateway contract (§4.5).
// Real implementations — anything that actually spawns an agent session —
// are out of scope for this module; only the interface and a test double
// (gateway/mock) live here.
package gateway

import (
	"context"
	"time"
)

// SpawnContext is everything an executor needs to start an agent session
// for a task.
type SpawnContext struct {
	TaskID          string
	TaskPath        string
	TaskFileContents string
	Agent           string
	Priority        string
	Routing         map[string]any
	Thinking        string
	ProjectID       string
	ProjectRoot     string
	GateContext     string
	TimeoutMs       int
}

// SpawnResult is what spawnSession returns.
type SpawnResult struct {
	Success       bool
	SessionID     string
	Error         string
	PlatformLimit string
}

// SessionStatus is what getSessionStatus returns.
type SessionStatus struct {
	SessionID       string
	Alive           bool
	LastHeartbeatAt time.Time
	CompletedAt     time.Time
}

// Gateway is the executor adapter contract every dispatch call goes
// through. Implementations may suspend at any point (network I/O, process
// spawn); callers pass a context for cancellation/timeout.
type Gateway interface {
	SpawnSession(ctx context.Context, sc SpawnContext) (SpawnResult, error)
	GetSessionStatus(ctx context.Context, sessionID string) (SessionStatus, error)
	ForceCompleteSession(ctx context.Context, sessionID string) error
}
