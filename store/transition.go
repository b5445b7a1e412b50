package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/task"
)

// TransitionOpts carries optional context persisted on the record during a
// transition.
type TransitionOpts struct {
	Actor    string
	Reason   string
	Blockers []string
}

// Transition validates targetStatus against the allowed edge table, moves
// the record to its new status directory (a single atomic rename), and
// emits task.transitioned. Lease invariants (lease present iff in-progress)
// are the caller's responsibility to satisfy before calling Transition when
// moving into/out of in-progress — the lease package does this atomically
// by calling TransitionFunc.
func (s *Store) Transition(id string, targetStatus task.Status, opts TransitionOpts) (*task.Task, error) {
	return s.TransitionFunc(id, targetStatus, opts, nil)
}

// TransitionFunc is Transition plus a mutate hook invoked on the in-memory
// task after the status field is updated but before it is persisted, so
// callers (lease acquire/release, gate evaluator application) can set
// lease/gate fields as part of the same atomic write.
func (s *Store) TransitionFunc(id string, targetStatus task.Status, opts TransitionOpts, mutate func(*task.Task)) (*task.Task, error) {
	if !targetStatus.Valid() {
		return nil, &ValidationError{ID: id, Reason: fmt.Errorf("unknown target status %q", targetStatus)}
	}

	fromStatus, ok := s.findStatus(id)
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	if !task.CanTransition(fromStatus, targetStatus) {
		return nil, &TransitionError{ID: id, From: string(fromStatus), To: string(targetStatus)}
	}

	t, err := s.readRecord(fromStatus, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t.Status = targetStatus
	t.UpdatedAt = now
	t.LastTransitionAt = now
	if opts.Reason != "" {
		if t.Metadata == nil {
			t.Metadata = task.Metadata{}
		}
		t.Metadata[task.MetaBlockReason] = opts.Reason
	}
	if len(opts.Blockers) > 0 {
		if t.ReviewContext == nil {
			t.ReviewContext = &task.ReviewContext{Timestamp: now}
		}
		t.ReviewContext.Blockers = opts.Blockers
	}

	if mutate != nil {
		mutate(t)
	}

	if err := task.Validate(t); err != nil {
		s.emitEvent(events.TypeTaskValidationFailed, opts.Actor, id, map[string]any{"error": err.Error()})
		return nil, &ValidationError{ID: id, Reason: err}
	}

	if err := s.moveTaskDir(fromStatus, targetStatus, id); err != nil {
		return nil, err
	}

	data, err := task.Encode(t)
	if err != nil {
		return nil, fmt.Errorf("encode task %s: %w", id, err)
	}
	if err := writeAtomic(s.recordPath(targetStatus, id), data, 0o644); err != nil {
		return nil, fmt.Errorf("write record %s: %w", id, err)
	}

	s.emitEvent(events.TypeTaskTransitioned, opts.Actor, id, map[string]any{
		"from":   string(fromStatus),
		"to":     string(targetStatus),
		"reason": opts.Reason,
	})

	return t, nil
}

// moveTaskDir relocates a task's entire directory (record + side-channel
// folders) from one status bucket to another via a single os.Rename, which
// is atomic on a single filesystem. This realizes "a transition is a rename
// between status directories" while keeping inputs/work/outputs/subtasks
// intact across the move.
func (s *Store) moveTaskDir(fromStatus, targetStatus task.Status, id string) error {
	if fromStatus == targetStatus {
		return nil
	}
	if err := os.MkdirAll(s.bucketPath(targetStatus), 0o755); err != nil {
		return fmt.Errorf("mkdir bucket %s: %w", targetStatus, err)
	}
	oldDir := s.taskDir(fromStatus, id)
	newDir := s.taskDir(targetStatus, id)
	if err := os.Rename(oldDir, newDir); err != nil {
		return fmt.Errorf("move %s -> %s: %w", oldDir, newDir, err)
	}
	return nil
}

// Update applies patch to the task's metadata/routing without changing
// status, writing atomically in place.
func (s *Store) Update(id string, patch func(*task.Task)) (*task.Task, error) {
	status, ok := s.findStatus(id)
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	t, err := s.readRecord(status, id)
	if err != nil {
		return nil, err
	}
	patch(t)
	t.UpdatedAt = time.Now().UTC()
	if err := task.Validate(t); err != nil {
		return nil, &ValidationError{ID: id, Reason: err}
	}
	if err := s.writeRecord(status, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateBody replaces the task's free-form body text.
func (s *Store) UpdateBody(id, body string) (*task.Task, error) {
	return s.Update(id, func(t *task.Task) { t.Body = body })
}

// Touch bumps updatedAt without otherwise modifying the record. Used by
// stale-heartbeat recovery and lease renewal bookkeeping.
func (s *Store) Touch(id string) (*task.Task, error) {
	return s.Update(id, func(*task.Task) {})
}

// WriteSideChannelFile writes content into one of a task's side-channel
// folders (inputs/work/outputs/subtasks), creating parent directories as
// needed. Used by the protocol router's handoff writer and by tools that
// produce deliverables.
func (s *Store) WriteSideChannelFile(id, sub, name string, content []byte) error {
	dir, err := s.SideChannelPath(id, sub)
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, name), content, 0o644)
}

// ReadSideChannelFile reads a file from one of a task's side-channel folders.
func (s *Store) ReadSideChannelFile(id, sub, name string) ([]byte, error) {
	dir, err := s.SideChannelPath(id, sub)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("read %s/%s/%s: %w", id, sub, name, err)
	}
	return data, nil
}
