// Package mock implements an in-memory gateway.Gateway for tests and local
// operation without a real agent-spawning backend.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360studio/aof/gateway"
)

// Gateway is a scriptable gateway.Gateway: callers queue canned results per
// call, or install a default result returned when the queue is empty.
type Gateway struct {
	mu sync.Mutex

	// Results, if set, is consumed FIFO by SpawnSession; once drained,
	// Default is used instead.
	Results []gateway.SpawnResult
	Default gateway.SpawnResult

	Sessions map[string]gateway.SessionStatus

	Calls []gateway.SpawnContext
}

// New creates a Gateway whose SpawnSession always succeeds with a
// synthesized session id, unless overridden via Results/Default.
func New() *Gateway {
	return &Gateway{
		Default:  gateway.SpawnResult{Success: true},
		Sessions: map[string]gateway.SessionStatus{},
	}
}

// SpawnSession implements gateway.Gateway.
func (g *Gateway) SpawnSession(ctx context.Context, sc gateway.SpawnContext) (gateway.SpawnResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Calls = append(g.Calls, sc)

	var result gateway.SpawnResult
	if len(g.Results) > 0 {
		result = g.Results[0]
		g.Results = g.Results[1:]
	} else {
		result = g.Default
	}

	if result.Success {
		if result.SessionID == "" {
			result.SessionID = fmt.Sprintf("mock-session-%s", sc.TaskID)
		}
		g.Sessions[result.SessionID] = gateway.SessionStatus{
			SessionID:       result.SessionID,
			Alive:           true,
			LastHeartbeatAt: time.Now(),
		}
	}
	return result, nil
}

// GetSessionStatus implements gateway.Gateway.
func (g *Gateway) GetSessionStatus(ctx context.Context, sessionID string) (gateway.SessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.Sessions[sessionID]
	if !ok {
		return gateway.SessionStatus{}, fmt.Errorf("mock gateway: unknown session %s", sessionID)
	}
	return st, nil
}

// ForceCompleteSession implements gateway.Gateway.
func (g *Gateway) ForceCompleteSession(ctx context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.Sessions[sessionID]
	if !ok {
		return fmt.Errorf("mock gateway: unknown session %s", sessionID)
	}
	st.Alive = false
	st.CompletedAt = time.Now()
	g.Sessions[sessionID] = st
	return nil
}

// SetHeartbeat lets tests backdate a session's last heartbeat to simulate a
// stale session.
func (g *Gateway) SetHeartbeat(sessionID string, t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.Sessions[sessionID]
	st.SessionID = sessionID
	st.LastHeartbeatAt = t
	st.Alive = true
	g.Sessions[sessionID] = st
}
