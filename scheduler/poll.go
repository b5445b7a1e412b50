package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/dispatch"
	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/gateway"
	"github.com/c360studio/aof/lease"
	"github.com/c360studio/aof/metrics"
	"github.com/c360studio/aof/murmur"
	"github.com/c360studio/aof/protocol"
	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

// StaleHeartbeatThreshold is the default age of a session's last heartbeat
// past which the in-progress task is considered stalled (§4.3 step 3).
const StaleHeartbeatThreshold = 10 * time.Minute

// Config configures one poll invocation.
type Config struct {
	DryRun                  bool
	StaleHeartbeatThreshold time.Duration
	ReviewTimeout           time.Duration
	Now                     time.Time      // defaults to time.Now().UTC() when zero
	JitterFn                func() float64 // defaults to rand.Float64
}

// Scheduler composes every package needed to run one poll pass.
type Scheduler struct {
	Store     *store.Store
	Leases    *lease.Manager
	Gateway   gateway.Gateway
	Throttle  *dispatch.Throttle
	Executor  *dispatch.Executor
	Murmur    *murmur.Manager
	SLA       *metrics.Checker
	Metrics   *metrics.Registry
	Events    *events.Logger
	Project   *config.Project
	OrgChart  *config.OrgChart
	Logger    *slog.Logger
}

// Poll runs the strict ten-pass cycle and returns a telemetry Result. It
// never runs concurrently with itself; callers serialize invocations.
func (s *Scheduler) Poll(ctx context.Context, cfg Config) (Result, error) {
	now := cfg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	threshold := cfg.StaleHeartbeatThreshold
	if threshold <= 0 {
		threshold = StaleHeartbeatThreshold
	}
	jitterFn := cfg.JitterFn
	if jitterFn == nil {
		jitterFn = rand.Float64
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	result := Result{DryRun: cfg.DryRun}

	// 1. Snapshot.
	all, err := s.Store.List()
	if err != nil {
		return result, err
	}

	var inProgress, ready, blocked []*task.Task
	for _, t := range all {
		switch t.Status {
		case task.StatusInProgress:
			inProgress = append(inProgress, t)
		case task.StatusReady:
			ready = append(ready, t)
		case task.StatusBlocked:
			blocked = append(blocked, t)
		}
	}

	// 2. Lease expiry.
	for _, t := range lease.FindExpired(inProgress, now) {
		result.record(Action{Type: ActionExpireLease, TaskID: t.ID, TaskTitle: t.Title, Reason: "lease_expired"})
		if cfg.DryRun {
			continue
		}
		if _, err := s.Leases.Reclaim(t.ID, "lease_expired"); err != nil {
			logger.Warn("reclaim expired lease failed", slog.String("taskId", t.ID), slog.String("error", err.Error()))
			result.ActionsFailed++
			continue
		}
		s.emit(events.TypeLeaseExpired, "scheduler", t.ID, nil)
	}

	// 3. Stale heartbeat.
	staleInProgress := subtractByID(inProgress, lease.FindExpired(inProgress, now))
	doneThisPoll := map[string]bool{}
	for _, t := range staleInProgress {
		s.checkStaleHeartbeat(ctx, t, now, threshold, cfg.DryRun, &result, doneThisPoll)
	}

	// 4. Promotion.
	promotable, err := s.Store.ComputeReadyTasks()
	if err != nil {
		return result, err
	}
	for _, t := range promotable {
		result.record(Action{Type: ActionPromote, TaskID: t.ID, TaskTitle: t.Title, Reason: "dependencies_satisfied"})
		if cfg.DryRun {
			continue
		}
		if _, err := s.Store.Transition(t.ID, task.StatusReady, store.TransitionOpts{Actor: "scheduler", Reason: "dependencies_satisfied"}); err != nil {
			logger.Warn("promote failed", slog.String("taskId", t.ID), slog.String("error", err.Error()))
			result.ActionsFailed++
			continue
		}
		ready = append(ready, t)
	}

	// 5. Blocked-task recovery.
	for _, t := range blocked {
		s.checkBlockedRecovery(t, now, jitterFn, cfg.DryRun, &result, &ready)
	}

	// 6. Dispatch.
	currentInProgress := len(inProgress) - len(lease.FindExpired(inProgress, now))
	if currentInProgress < 0 {
		currentInProgress = 0
	}
	if s.Throttle != nil {
		s.Throttle.BeginPoll()
	}
	for _, t := range ready {
		s.dispatchOne(ctx, t, now, cfg.DryRun, currentInProgress, &result, doneThisPoll, &currentInProgress)
	}

	// 7. Cascade: re-run promotion for tasks whose dependency just completed.
	if len(doneThisPoll) > 0 {
		cascaded, err := s.Store.ComputeReadyTasks()
		if err == nil {
			for _, t := range cascaded {
				result.record(Action{Type: ActionPromote, TaskID: t.ID, TaskTitle: t.Title, Reason: "cascade_dependencies_satisfied"})
				if cfg.DryRun {
					continue
				}
				if _, err := s.Store.Transition(t.ID, task.StatusReady, store.TransitionOpts{Actor: "scheduler", Reason: "cascade_dependencies_satisfied"}); err != nil {
					logger.Warn("cascade promote failed", slog.String("taskId", t.ID), slog.String("error", err.Error()))
					result.ActionsFailed++
				}
			}
		}
	}

	// 8. SLA check.
	if s.SLA != nil {
		refreshed, err := s.Store.ListStatus(task.StatusInProgress)
		if err == nil {
			for _, v := range s.SLA.Check(refreshed, now) {
				result.record(Action{Type: ActionSLAViolation, TaskID: v.TaskID, Reason: "sla_exceeded", Duration: v.Duration, Limit: v.Limit})
			}
		}
	}

	// 9. Murmur.
	if s.Murmur != nil && s.OrgChart != nil {
		s.runMurmur(now, cfg, &result)
	}

	// 10. Execute/emit.
	if s.Metrics != nil {
		s.Metrics.PollsTotal.Inc()
	}
	s.emit(events.TypeSchedulerPoll, "scheduler", "", map[string]any{
		"actionsPlanned":  result.ActionsPlanned,
		"actionsExecuted": result.ActionsExecuted,
		"actionsFailed":   result.ActionsFailed,
		"leasesExpired":   result.LeasesExpired,
		"tasksRequeued":   result.TasksRequeued,
		"tasksPromoted":   result.TasksPromoted,
		"dryRun":          cfg.DryRun,
	})

	return result, nil
}

func (s *Scheduler) emit(eventType, actor, taskID string, payload map[string]any) {
	if s.Events == nil {
		return
	}
	_, _ = s.Events.Emit(eventType, actor, taskID, payload)
}

func subtractByID(all, remove []*task.Task) []*task.Task {
	if len(remove) == 0 {
		return all
	}
	excluded := make(map[string]bool, len(remove))
	for _, t := range remove {
		excluded[t.ID] = true
	}
	var out []*task.Task
	for _, t := range all {
		if !excluded[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func (s *Scheduler) checkStaleHeartbeat(ctx context.Context, t *task.Task, now time.Time, threshold time.Duration, dryRun bool, result *Result, doneThisPoll map[string]bool) {
	sessionID := t.Metadata.GetString(task.MetaSessionID)
	if sessionID == "" || s.Gateway == nil {
		return
	}
	status, err := s.Gateway.GetSessionStatus(ctx, sessionID)
	if err != nil {
		return
	}
	if status.LastHeartbeatAt.IsZero() || now.Sub(status.LastHeartbeatAt) <= threshold {
		return
	}

	result.record(Action{Type: ActionStaleHeartbeat, TaskID: t.ID, TaskTitle: t.Title, Reason: "heartbeat_stale"})
	if dryRun {
		return
	}

	if rr, found, _ := protocol.ReadRunResult(s.Store, t.ID); found {
		payload := protocol.CompletionReportPayload{
			Outcome: rr.Outcome, SummaryRef: rr.SummaryRef, Deliverables: rr.Deliverables,
			Tests: rr.Tests, Blockers: rr.Blockers, Notes: rr.Notes,
		}
		if err := protocol.ApplyCompletion(s.Store, s.Project, t.ID, "scheduler", payload, now, s.Murmur); err != nil {
			s.Logger.Warn("apply stale run_result failed", slog.String("taskId", t.ID), slog.String("error", err.Error()))
			return
		}
		if rr.Outcome == "done" {
			doneThisPoll[t.ID] = true
		}
		return
	}

	if err := s.Gateway.ForceCompleteSession(ctx, sessionID); err != nil {
		s.Logger.Warn("force-complete stale session failed", slog.String("taskId", t.ID), slog.String("error", err.Error()))
	}
	s.emit(events.TypeSessionForceCompleted, "scheduler", t.ID, map[string]any{"sessionId": sessionID})
	if _, err := s.Leases.Reclaim(t.ID, "stale_heartbeat"); err != nil {
		s.Logger.Warn("reclaim stale-heartbeat task failed", slog.String("taskId", t.ID), slog.String("error", err.Error()))
		return
	}
	expired := protocol.RunResult{Outcome: "expired", Notes: "session heartbeat stale, no run_result recorded"}
	data, _ := json.MarshalIndent(expired, "", "  ")
	_ = s.Store.WriteSideChannelFile(t.ID, store.OutputsDir, "run_result.json", data)
}

func (s *Scheduler) checkBlockedRecovery(t *task.Task, now time.Time, jitterFn func() float64, dryRun bool, result *Result, ready *[]*task.Task) {
	retryCount := t.Metadata.GetInt(task.MetaRetryCount)
	if retryCount == 0 {
		return // not a spawn-failure block; leave manual/review blocks alone
	}
	lastBlockedStr := t.Metadata.GetString(task.MetaLastBlockedAt)
	if lastBlockedStr == "" {
		return
	}
	lastBlocked, err := time.Parse(time.RFC3339Nano, lastBlockedStr)
	if err != nil {
		return
	}
	nextRetryAt := dispatch.NextRetryAt(lastBlocked, retryCount-1, jitterFn)
	if now.Before(nextRetryAt) {
		return
	}

	result.record(Action{Type: ActionRequeue, TaskID: t.ID, TaskTitle: t.Title, Reason: "retry_due"})
	if dryRun {
		return
	}
	rt, err := s.Store.Transition(t.ID, task.StatusReady, store.TransitionOpts{Actor: "scheduler", Reason: "retry_due"})
	if err != nil {
		s.Logger.Warn("requeue blocked task failed", slog.String("taskId", t.ID), slog.String("error", err.Error()))
		return
	}
	*ready = append(*ready, rt)
}

func (s *Scheduler) dispatchOne(ctx context.Context, t *task.Task, now time.Time, dryRun bool, currentInProgress int, result *Result, doneThisPoll map[string]bool, counter *int) {
	if s.Executor == nil || s.OrgChart == nil {
		return
	}
	outcome, err := s.Executor.Dispatch(ctx, t, s.OrgChart, currentInProgress, now, dryRun)
	if err != nil {
		s.Logger.Warn("dispatch failed", slog.String("taskId", t.ID), slog.String("error", err.Error()))
		result.ActionsFailed++
		return
	}

	switch outcome.Action {
	case "assign":
		result.record(Action{Type: ActionAssign, TaskID: t.ID, TaskTitle: t.Title, Agent: outcome.Agent})
		if !dryRun {
			*counter++
		}
	case "unassigned":
		result.record(Action{Type: ActionUnassigned, TaskID: t.ID, TaskTitle: t.Title, Reason: outcome.Reason})
	case "throttled":
		result.record(Action{Type: ActionThrottled, TaskID: t.ID, TaskTitle: t.Title, Reason: outcome.Reason})
	case "blocked":
		result.record(Action{Type: ActionBlock, TaskID: t.ID, TaskTitle: t.Title, Reason: outcome.Reason, Agent: outcome.Agent})
	case "deadletter":
		result.record(Action{Type: ActionDeadletter, TaskID: t.ID, TaskTitle: t.Title, Reason: outcome.Reason, Agent: outcome.Agent})
		if !dryRun {
			s.notifyMurmurDeadletter(t)
		}
	}
}

// notifyMurmurDeadletter updates the team's murmur failure counters after
// the executor deadletters a task directly (the permanent-error and
// max-retries paths in dispatch.Executor never go through
// protocol.ApplyCompletion, so its own murmur hook never sees them).
func (s *Scheduler) notifyMurmurDeadletter(t *task.Task) {
	if s.Murmur == nil || t.Routing.Team == "" {
		return
	}
	if t.Metadata.GetString(task.MetaKind) == murmur.ReviewTaskKind {
		if err := s.Murmur.OnReviewTaskDeadletter(t.Routing.Team); err != nil {
			s.Logger.Warn("murmur review deadletter bookkeeping failed", slog.String("taskId", t.ID), slog.String("error", err.Error()))
		}
		return
	}
	if err := s.Murmur.OnTaskDeadletter(t.Routing.Team); err != nil {
		s.Logger.Warn("murmur deadletter bookkeeping failed", slog.String("taskId", t.ID), slog.String("error", err.Error()))
	}
}

func (s *Scheduler) runMurmur(now time.Time, cfg Config, result *Result) {
	reviewTimeout := cfg.ReviewTimeout
	if reviewTimeout <= 0 {
		reviewTimeout = murmur.DefaultReviewTimeout
	}

	for _, team := range s.OrgChart.Teams {
		if err := s.Murmur.Cleanup(team.ID, now, reviewTimeout); err != nil {
			s.Logger.Warn("murmur cleanup failed", slog.String("team", team.ID), slog.String("error", err.Error()))
			continue
		}

		state, err := murmur.LoadState(s.Store.Root(), team.ID)
		if err != nil {
			s.Logger.Warn("murmur load state failed", slog.String("team", team.ID), slog.String("error", err.Error()))
			continue
		}

		teamTasks := tasksForTeam(s.Store, team.ID)
		trig, fired := murmur.Evaluate(team, state, teamTasks)
		if !fired {
			continue
		}

		result.record(Action{Type: ActionMurmurCreateTask, Reason: trig.Type})
		if cfg.DryRun {
			continue
		}
		if _, err := s.Murmur.Fire(team, trig, now); err != nil {
			s.Logger.Warn("murmur fire failed", slog.String("team", team.ID), slog.String("error", err.Error()))
		}
	}
}

func tasksForTeam(s *store.Store, teamID string) []*task.Task {
	all, err := s.List()
	if err != nil {
		return nil
	}
	var out []*task.Task
	for _, t := range all {
		if t.Routing.Team == teamID {
			out = append(out, t)
		}
	}
	return out
}
