package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/gateway"
	"github.com/c360studio/aof/lease"
	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

// Outcome is the tagged result of one Dispatch call, shaped to become a
// scheduler action record (§4.3: "Actions are recorded as tagged
// variants... {type, taskId, taskTitle, reason, agent?, ...}").
type Outcome struct {
	Action  string // "assign" | "unassigned" | "blocked" | "deadletter" | "throttled"
	TaskID  string
	Agent   string
	Team    string
	Reason  string
}

// Executor matches ready tasks to agents and drives the gateway, applying
// the throttle, classification, backoff and deadletter rules of §4.4.
type Executor struct {
	store      *store.Store
	leases     *lease.Manager
	gw         gateway.Gateway
	throttle   *Throttle
	events     *events.Logger
	logger     *slog.Logger
	maxRetries int
	leaseTTL   time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewExecutor builds an Executor. maxRetries defaults to
// DefaultMaxDispatchRetries when <= 0.
func NewExecutor(s *store.Store, leases *lease.Manager, gw gateway.Gateway, throttle *Throttle, emit *events.Logger, logger *slog.Logger, maxRetries int) *Executor {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxDispatchRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:      s,
		leases:     leases,
		gw:         gw,
		throttle:   throttle,
		events:     emit,
		logger:     logger,
		maxRetries: maxRetries,
		leaseTTL:   lease.DefaultTTL,
		breakers:   map[string]*gobreaker.CircuitBreaker{},
	}
}

func (e *Executor) breakerFor(agent string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[agent]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dispatch:" + agent,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	e.breakers[agent] = cb
	return cb
}

// Dispatch attempts to assign t to an agent. currentInProgress is the
// process-wide count of in-progress tasks, used for the maxConcurrent
// throttle. dryRun plans the action without calling the gateway or mutating
// the store.
func (e *Executor) Dispatch(ctx context.Context, t *task.Task, org *config.OrgChart, currentInProgress int, now time.Time, dryRun bool) (Outcome, error) {
	agentID, teamID, ok := ResolveAgent(t, org)
	if !ok {
		e.emit(events.TypeDispatchUnassigned, "", t.ID, map[string]any{"reason": "no_agent_resolved"})
		return Outcome{Action: "unassigned", TaskID: t.ID, Reason: "no_agent_resolved"}, nil
	}

	if team, found := org.FindTeam(teamID); found {
		e.throttle.SetTeamLimits(teamID, Limits{
			MaxConcurrentDispatches: team.Dispatch.MaxConcurrent,
			MinDispatchIntervalMs:   team.Dispatch.MinIntervalMs,
		})
	}

	if !e.throttle.Allow(teamID, currentInProgress, now) {
		return Outcome{Action: "throttled", TaskID: t.ID, Agent: agentID, Team: teamID, Reason: "throttle_limit"}, nil
	}

	if dryRun {
		return Outcome{Action: "assign", TaskID: t.ID, Agent: agentID, Team: teamID}, nil
	}

	recordPath, err := e.store.RecordPath(t.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve record path for %s: %w", t.ID, err)
	}
	contents, err := os.ReadFile(recordPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("read record for %s: %w", t.ID, err)
	}

	sc := gateway.SpawnContext{
		TaskID:           t.ID,
		TaskPath:         recordPath,
		TaskFileContents: string(contents),
		Agent:            agentID,
		Priority:         string(t.Priority),
		Routing:          map[string]any{"agent": t.Routing.Agent, "role": t.Routing.Role, "team": t.Routing.Team},
	}

	e.emit(events.TypeActionStarted, agentID, t.ID, map[string]any{"agent": agentID})

	cb := e.breakerFor(agentID)
	res, cbErr := cb.Execute(func() (interface{}, error) {
		r, err := e.gw.SpawnSession(ctx, sc)
		if err != nil {
			return r, err
		}
		if !r.Success {
			return r, fmt.Errorf("%s", r.Error)
		}
		return r, nil
	})

	if cbErr != nil {
		spawnErr := cbErr.Error()
		if sr, ok := res.(gateway.SpawnResult); ok && sr.Error != "" {
			spawnErr = sr.Error
		}
		e.emit(events.TypeActionCompleted, agentID, t.ID, map[string]any{"success": false, "error": spawnErr})
		return e.handleFailure(t, agentID, spawnErr, now)
	}

	spawnRes := res.(gateway.SpawnResult)
	if _, err := e.leases.Acquire(t.ID, agentID, e.leaseTTL, lease.DefaultMaxRenewals); err != nil {
		return Outcome{}, fmt.Errorf("acquire lease for %s after successful spawn: %w", t.ID, err)
	}
	if spawnRes.SessionID != "" {
		if _, err := e.store.Update(t.ID, func(ut *task.Task) {
			if ut.Metadata == nil {
				ut.Metadata = task.Metadata{}
			}
			ut.Metadata[task.MetaSessionID] = spawnRes.SessionID
		}); err != nil {
			e.logger.Warn("failed to record session id", slog.String("taskId", t.ID), slog.String("error", err.Error()))
		}
	}

	e.throttle.RecordDispatch(teamID, now, false)
	e.emit(events.TypeDispatchMatched, agentID, t.ID, map[string]any{"agent": agentID, "team": teamID})
	e.emit(events.TypeActionCompleted, agentID, t.ID, map[string]any{"success": true, "sessionId": spawnRes.SessionID})

	return Outcome{Action: "assign", TaskID: t.ID, Agent: agentID, Team: teamID}, nil
}

// handleFailure classifies a spawn error and applies retry/backoff or
// immediate/threshold deadletter per §4.4.
func (e *Executor) handleFailure(t *task.Task, agentID, errMsg string, now time.Time) (Outcome, error) {
	class := Classify(errMsg)
	reason := fmt.Sprintf("spawn_failed: %s", errMsg)

	if class == ClassPermanent {
		if err := e.blockThenDeadletter(t.ID, reason, "permanent_error", errMsg, 1); err != nil {
			return Outcome{}, err
		}
		return Outcome{Action: "deadletter", TaskID: t.ID, Agent: agentID, Reason: "permanent_error"}, nil
	}

	retryCount := t.Metadata.GetInt(task.MetaRetryCount) + 1

	if retryCount >= e.maxRetries {
		if err := e.blockThenDeadletter(t.ID, reason, "max_dispatch_failures", errMsg, retryCount); err != nil {
			return Outcome{}, err
		}
		return Outcome{Action: "deadletter", TaskID: t.ID, Agent: agentID, Reason: "max_dispatch_failures"}, nil
	}

	_, err := e.store.TransitionFunc(t.ID, task.StatusBlocked, store.TransitionOpts{
		Actor:  "dispatch-executor",
		Reason: reason,
	}, func(ut *task.Task) {
		if ut.Metadata == nil {
			ut.Metadata = task.Metadata{}
		}
		ut.Metadata[task.MetaRetryCount] = retryCount
		ut.Metadata[task.MetaLastBlockedAt] = now.Format(time.RFC3339Nano)
		ut.Metadata[task.MetaErrorClass] = string(class)
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("transition %s to blocked: %w", t.ID, err)
	}

	return Outcome{Action: "blocked", TaskID: t.ID, Agent: agentID, Reason: reason}, nil
}

func (e *Executor) blockThenDeadletter(id, blockReason, deadletterReason, lastFailure string, failureCount int) error {
	if _, err := e.store.TransitionFunc(id, task.StatusBlocked, store.TransitionOpts{
		Actor: "dispatch-executor", Reason: blockReason,
	}, func(ut *task.Task) {
		if ut.Metadata == nil {
			ut.Metadata = task.Metadata{}
		}
		ut.Metadata[task.MetaRetryCount] = failureCount
		ut.Metadata[task.MetaErrorClass] = deadletterReason
	}); err != nil {
		return fmt.Errorf("transition %s to blocked before deadletter: %w", id, err)
	}

	if _, err := e.store.TransitionFunc(id, task.StatusDeadletter, store.TransitionOpts{
		Actor: "dispatch-executor", Reason: deadletterReason,
	}, nil); err != nil {
		return fmt.Errorf("transition %s to deadletter: %w", id, err)
	}

	e.emit(events.TypeTaskDeadletter, "dispatch-executor", id, map[string]any{
		"reason":           deadletterReason,
		"failureCount":     failureCount,
		"lastFailureReason": lastFailure,
	})
	return nil
}

func (e *Executor) emit(eventType, actor, taskID string, payload map[string]any) {
	if e.events == nil {
		return
	}
	if _, err := e.events.Emit(eventType, actor, taskID, payload); err != nil {
		e.logger.Warn("failed to emit event", slog.String("type", eventType), slog.String("error", err.Error()))
	}
}
