package protocol

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/gate"
	"github.com/c360studio/aof/murmur"
	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

// ProjectResolver maps an envelope's projectId to the store and project
// manifest that owns it. An unresolved id is reported by ok=false.
type ProjectResolver func(projectID string) (*store.Store, *config.Project, bool)

// Router dispatches parsed envelopes to task-store mutations, serializing
// completion handling per task id (§4.7, §5).
type Router struct {
	resolve ProjectResolver
	events  *events.Logger
	murmur  *murmur.Manager

	mu       sync.Mutex
	taskLock map[string]*sync.Mutex
}

// NewRouter builds a Router. emit receives protocol/delegation events; it
// may be nil in tests that only assert store state. murmurMgr drives the
// completionBatch/failureBatch counters (§4.8) from real completion reports
// and may also be nil where a caller has no team bookkeeping to update.
func NewRouter(resolve ProjectResolver, emit *events.Logger, murmurMgr *murmur.Manager) *Router {
	return &Router{resolve: resolve, events: emit, murmur: murmurMgr, taskLock: map[string]*sync.Mutex{}}
}

func (r *Router) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.taskLock[id]
	if !ok {
		l = &sync.Mutex{}
		r.taskLock[id] = l
	}
	return l
}

func (r *Router) emit(eventType, actor, taskID string, payload map[string]any) {
	if r.events == nil {
		return
	}
	_, _ = r.events.Emit(eventType, actor, taskID, payload)
}

// HandleRaw unwraps, parses and routes one message in any of the three
// accepted wire carriers.
func (r *Router) HandleRaw(data []byte) error {
	env, err := ParseEnvelope(Unwrap(data))
	if err != nil {
		if rerr, ok := err.(*RejectError); ok {
			r.emit(events.TypeProtocolMessageRejected, "", "", map[string]any{"reason": string(rerr.Reason)})
		}
		return err
	}
	return r.Handle(env)
}

// Handle routes an already-parsed envelope.
func (r *Router) Handle(env *Envelope) error {
	if env.ProjectID == "" {
		return r.rejectEnvelope(env, "invalid_envelope")
	}

	s, project, ok := r.resolve(env.ProjectID)
	if !ok {
		r.emit(events.TypeProtocolMessageRejected, env.FromAgent, env.TaskID, map[string]any{"reason": "invalid_project_id", "projectId": env.ProjectID})
		return fmt.Errorf("protocol: unresolved project id %q", env.ProjectID)
	}

	if _, err := s.Get(env.TaskID); err != nil {
		r.emit(events.TypeProtocolMessageRejected, env.FromAgent, env.TaskID, map[string]any{"reason": "task_not_found"})
		return fmt.Errorf("protocol: task %s not found: %w", env.TaskID, err)
	}

	switch env.Type {
	case TypeStatusUpdate:
		return r.handleStatusUpdate(s, env)
	case TypeCompletionReport:
		return r.handleCompletionReport(s, project, env)
	case TypeHandoffRequest:
		return r.handleHandoffRequest(s, env)
	case TypeHandoffAccepted:
		return r.handleHandoffAccepted(env)
	case TypeHandoffRejected:
		return r.handleHandoffRejected(s, env)
	default:
		r.emit(events.TypeProtocolMessageUnknown, env.FromAgent, env.TaskID, map[string]any{"type": env.Type})
		return nil
	}
}

func (r *Router) rejectEnvelope(env *Envelope, reason string) error {
	actor, taskID := "", ""
	if env != nil {
		actor, taskID = env.FromAgent, env.TaskID
	}
	r.emit(events.TypeProtocolMessageRejected, actor, taskID, map[string]any{"reason": reason})
	return fmt.Errorf("protocol: %s", reason)
}

func (r *Router) handleStatusUpdate(s *store.Store, env *Envelope) error {
	var p StatusUpdatePayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}

	entry := fmt.Sprintf("[%s] %s: %s", env.SentAt.Format(time.RFC3339), env.FromAgent, p.Progress)
	if p.Notes != "" {
		entry += " — " + p.Notes
	}

	t, err := s.Update(env.TaskID, func(t *task.Task) {
		if t.Body != "" {
			t.Body += "\n"
		}
		t.Body += entry
		if len(p.Blockers) > 0 {
			if t.ReviewContext == nil {
				t.ReviewContext = &task.ReviewContext{Timestamp: env.SentAt}
			}
			t.ReviewContext.Blockers = p.Blockers
		}
	})
	if err != nil {
		return fmt.Errorf("status.update for %s: %w", env.TaskID, err)
	}

	if len(p.Blockers) > 0 && t.Status != task.StatusBlocked {
		if _, err := s.Transition(env.TaskID, task.StatusBlocked, store.TransitionOpts{
			Actor: env.FromAgent, Reason: "status_update_blockers", Blockers: p.Blockers,
		}); err != nil {
			return fmt.Errorf("status.update block transition for %s: %w", env.TaskID, err)
		}
	}
	return nil
}

func (r *Router) handleCompletionReport(s *store.Store, project *config.Project, env *Envelope) error {
	lock := r.lockFor(env.TaskID)
	lock.Lock()
	defer lock.Unlock()

	var p CompletionReportPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}

	return ApplyCompletion(s, project, env.TaskID, env.FromAgent, p, env.SentAt, r.murmur)
}

func mapGateOutcome(outcome string) (gate.Outcome, error) {
	switch outcome {
	case "done":
		return gate.OutcomeComplete, nil
	case "needs_review":
		return gate.OutcomeNeedsReview, nil
	case "blocked", "partial":
		return gate.OutcomeBlocked, nil
	default:
		return "", fmt.Errorf("completion.report: unknown outcome %q", outcome)
	}
}

// mapNoWorkflowStatus implements the no-workflow direct-transition path:
// done -> done, blocked -> blocked, needs_review and partial both route to
// review (a human or the next agent must look at the work).
func mapNoWorkflowStatus(outcome string) (task.Status, error) {
	switch outcome {
	case "done":
		return task.StatusDone, nil
	case "blocked":
		return task.StatusBlocked, nil
	case "needs_review", "partial":
		return task.StatusReview, nil
	default:
		return "", fmt.Errorf("completion.report: unknown outcome %q", outcome)
	}
}

func (r *Router) handleHandoffRequest(s *store.Store, env *Envelope) error {
	var p HandoffRequestPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	if p.TaskID != "" && p.TaskID != env.TaskID {
		return r.rejectEnvelope(env, "taskId_mismatch")
	}

	parent, err := s.Get(env.TaskID)
	if err != nil {
		return r.rejectEnvelope(env, "missing_parent")
	}
	if parent.Metadata.GetInt(task.MetaDelegationDepth) != 0 {
		return r.rejectEnvelope(env, "nested_delegation")
	}

	correlationID := uuid.NewString()
	title := p.Title
	if title == "" {
		title = parent.Title
	}
	child, err := s.Create(store.CreateInput{
		Title:      title,
		Body:       p.Body,
		Priority:   parent.Priority,
		Routing:    parent.Routing,
		CreatedBy:  env.FromAgent,
		StartReady: true,
		Metadata: task.Metadata{
			task.MetaParentTaskID:    parent.ID,
			task.MetaCorrelationID:   correlationID,
			task.MetaDelegationDepth: parent.Metadata.GetInt(task.MetaDelegationDepth) + 1,
		},
	})
	if err != nil {
		return fmt.Errorf("create handoff child for %s: %w", env.TaskID, err)
	}

	handoffJSON, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal handoff payload: %w", err)
	}
	if err := s.WriteSideChannelFile(child.ID, store.InputsDir, "handoff.json", handoffJSON); err != nil {
		return fmt.Errorf("write handoff.json for %s: %w", child.ID, err)
	}
	handoffMD := fmt.Sprintf("# Handoff\n\nFrom: %s\nParent: %s\n\n%s\n", env.FromAgent, parent.ID, p.Body)
	if err := s.WriteSideChannelFile(child.ID, store.InputsDir, "handoff.md", []byte(handoffMD)); err != nil {
		return fmt.Errorf("write handoff.md for %s: %w", child.ID, err)
	}

	r.emit(events.TypeDelegationRequested, env.FromAgent, env.TaskID, map[string]any{
		"childId":       child.ID,
		"correlationId": correlationID,
	})
	return nil
}

func (r *Router) handleHandoffAccepted(env *Envelope) error {
	var p HandoffDecisionPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	r.emit(events.TypeDelegationAccepted, env.FromAgent, env.TaskID, map[string]any{"taskId": p.TaskID})
	return nil
}

func (r *Router) handleHandoffRejected(s *store.Store, env *Envelope) error {
	var p HandoffDecisionPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	_, err := s.TransitionFunc(env.TaskID, task.StatusBlocked, store.TransitionOpts{
		Actor: env.FromAgent, Reason: p.Reason,
	}, func(t *task.Task) {
		t.Lease = nil
	})
	if err != nil {
		return fmt.Errorf("handoff.rejected transition for %s: %w", env.TaskID, err)
	}
	r.emit(events.TypeDelegationRejected, env.FromAgent, env.TaskID, map[string]any{"reason": p.Reason})
	return nil
}
