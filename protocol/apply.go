package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/gate"
	"github.com/c360studio/aof/murmur"
	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

// notifyMurmur updates a team's murmur counters after a completion report
// resolves a task's status, so completionBatch/failureBatch triggers (§4.8)
// react to real dispatch outcomes rather than only the idempotent
// queueEmpty trigger. mgr may be nil where no team bookkeeping applies.
func notifyMurmur(mgr *murmur.Manager, t *task.Task) {
	if mgr == nil || t.Routing.Team == "" {
		return
	}
	isReview := t.Metadata.GetString(task.MetaKind) == murmur.ReviewTaskKind
	switch t.Status {
	case task.StatusDone:
		if isReview {
			_ = mgr.EndReview(t.Routing.Team, t.UpdatedAt)
			return
		}
		_ = mgr.OnTaskDone(t.Routing.Team)
	case task.StatusDeadletter:
		if isReview {
			_ = mgr.OnReviewTaskDeadletter(t.Routing.Team)
			return
		}
		_ = mgr.OnTaskDeadletter(t.Routing.Team)
	}
}

// ApplyCompletion writes the durable run_result artifact and applies the
// matching state transition for a completion report, either through the
// gate evaluator (workflow-gated tasks) or the direct no-workflow mapping.
// Shared between the protocol router's completion.report handler and the
// scheduler's stale-heartbeat recovery pass (§4.3 step 3), which replays a
// previously-written run_result the same way.
func ApplyCompletion(s *store.Store, project *config.Project, taskID, actor string, p CompletionReportPayload, now time.Time, murmurMgr *murmur.Manager) error {
	result := RunResult{
		Outcome: p.Outcome, SummaryRef: p.SummaryRef, Deliverables: p.Deliverables,
		Tests: p.Tests, Blockers: p.Blockers, Notes: p.Notes, Agent: actor,
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run_result for %s: %w", taskID, err)
	}
	if err := s.WriteSideChannelFile(taskID, store.OutputsDir, runResultFileName, data); err != nil {
		return fmt.Errorf("write run_result for %s: %w", taskID, err)
	}

	t, err := s.Get(taskID)
	if err != nil {
		return err
	}

	if t.Gate != nil && project != nil && project.HasWorkflow() {
		outcome, err := mapGateOutcome(p.Outcome)
		if err != nil {
			return err
		}
		res, err := gate.Evaluate(gate.Input{
			Task: t, Workflow: project.Workflow.ToGateWorkflow(), Outcome: outcome,
			Summary: p.SummaryRef, Blockers: p.Blockers, RejectionNotes: p.Notes,
			Agent: actor, Now: now,
		})
		if err != nil {
			return fmt.Errorf("gate evaluate for %s: %w", taskID, err)
		}
		updated, err := s.TransitionFunc(taskID, res.Status, store.TransitionOpts{
			Actor: actor, Reason: "completion_report", Blockers: p.Blockers,
		}, func(ut *task.Task) {
			gate.Apply(ut, res)
			if ut.Status != task.StatusInProgress {
				ut.Lease = nil
			}
		})
		if err != nil {
			return fmt.Errorf("apply gate result for %s: %w", taskID, err)
		}
		notifyMurmur(murmurMgr, updated)
		return nil
	}

	target, err := mapNoWorkflowStatus(p.Outcome)
	if err != nil {
		return err
	}
	updated, err := s.TransitionFunc(taskID, target, store.TransitionOpts{
		Actor: actor, Reason: "completion_report", Blockers: p.Blockers,
	}, func(ut *task.Task) {
		if ut.Status != task.StatusInProgress {
			ut.Lease = nil
		}
	})
	if err != nil {
		return fmt.Errorf("completion.report transition for %s: %w", taskID, err)
	}
	notifyMurmur(murmurMgr, updated)
	return nil
}

// ReadRunResult reads a previously written run_result artifact, if any.
func ReadRunResult(s *store.Store, taskID string) (RunResult, bool, error) {
	data, err := s.ReadSideChannelFile(taskID, store.OutputsDir, runResultFileName)
	if err != nil {
		return RunResult{}, false, nil
	}
	var rr RunResult
	if err := json.Unmarshal(data, &rr); err != nil {
		return RunResult{}, false, fmt.Errorf("parse run_result for %s: %w", taskID, err)
	}
	return rr, true, nil
}
