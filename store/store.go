package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/task"
)

// Store is the filesystem-backed task store described in §4.1. A single
// Store instance serializes id-allocation within this process; concurrent
// processes racing on the same data directory are handled per the
// best-effort guarantee in §4.2 (losers observe a consistent final state,
// never corruption).
type Store struct {
	root   string
	logger *slog.Logger
	emit   *events.Logger

	mu sync.Mutex // guards id allocation only; file ops are independently atomic
}

// New creates a Store rooted at root. root must already contain (or be able
// to create) a tasks/ directory; callers typically call EnsureLayout once at
// startup.
func New(root string, logger *slog.Logger, emit *events.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger, emit: emit}
}

// EnsureLayout creates the tasks/<status> directories if they do not exist.
func (s *Store) EnsureLayout() error {
	for _, st := range task.AllStatuses {
		if err := os.MkdirAll(s.bucketPath(st), 0o755); err != nil {
			return fmt.Errorf("ensure layout %s: %w", st, err)
		}
	}
	return nil
}

// CreateInput carries the fields a caller supplies when creating a task; the
// store fills in id, timestamps, and defaults.
type CreateInput struct {
	Title      string
	Body       string
	Priority   task.Priority
	Routing    task.Routing
	DependsOn  []string
	CreatedBy  string
	Metadata   task.Metadata
	StartReady bool // if true, the task is created directly in "ready" rather than "backlog"
}

// Create assigns a dated+sequenced id, writes the record to backlog/ (or
// ready/ if StartReady), and emits task.created.
func (s *Store) Create(in CreateInput) (*task.Task, error) {
	priority := in.Priority
	if priority == "" {
		priority = task.PriorityNormal
	}
	if !priority.Valid() {
		return nil, &ValidationError{Reason: fmt.Errorf("invalid priority %q", priority)}
	}

	status := task.StatusBacklog
	if in.StartReady {
		status = task.StatusReady
	}

	now := time.Now().UTC()
	id, err := s.nextID(now)
	if err != nil {
		return nil, err
	}

	md := in.Metadata
	if md == nil {
		md = task.Metadata{}
	}

	t := &task.Task{
		ID:               id,
		Title:            in.Title,
		Status:           status,
		Priority:         priority,
		Routing:          in.Routing,
		DependsOn:        append([]string(nil), in.DependsOn...),
		Metadata:         md,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastTransitionAt: now,
		CreatedBy:        in.CreatedBy,
		Body:             in.Body,
	}

	if err := task.Validate(t); err != nil {
		return nil, &ValidationError{ID: t.ID, Reason: err}
	}

	if err := s.writeRecord(status, t); err != nil {
		return nil, err
	}

	s.emitEvent(events.TypeTaskCreated, t.CreatedBy, t.ID, map[string]any{
		"status":   string(t.Status),
		"priority": string(t.Priority),
		"title":    t.Title,
	})

	return t, nil
}

// nextID allocates the next free TASK-yyyy-mm-dd-nnn id for day, scanning
// every status bucket for existing ids with today's date prefix.
func (s *Store) nextID(day time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := task.DatePrefix(day)
	max := 0
	for _, st := range task.AllStatuses {
		entries, err := os.ReadDir(s.bucketPath(st))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("scan %s: %w", st, err)
		}
		for _, e := range entries {
			name := e.Name()
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			seqStr := strings.TrimPrefix(name, prefix)
			seqStr = strings.TrimSuffix(seqStr, filepath.Ext(seqStr))
			if n, err := strconv.Atoi(seqStr); err == nil && n > max {
				max = n
			}
		}
	}
	return task.NewID(day, max+1), nil
}

// writeRecord serializes t and writes it atomically at its current status's
// path, creating the side-channel folders alongside it.
func (s *Store) writeRecord(status task.Status, t *task.Task) error {
	data, err := task.Encode(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}

	dir := s.taskDir(status, t.ID)
	for _, sub := range []string{InputsDir, WorkDir, OutputsDir, SubtasksDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", sub, err)
		}
	}

	if err := writeAtomic(s.recordPath(status, t.ID), data, 0o644); err != nil {
		return fmt.Errorf("write record %s: %w", t.ID, err)
	}
	return nil
}

// findStatus locates which status bucket currently holds id, or ("", false)
// if none does.
func (s *Store) findStatus(id string) (task.Status, bool) {
	for _, st := range task.AllStatuses {
		if _, err := os.Stat(s.recordPath(st, id)); err == nil {
			return st, true
		}
	}
	return "", false
}

// Get loads a single task by id.
func (s *Store) Get(id string) (*task.Task, error) {
	st, ok := s.findStatus(id)
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return s.readRecord(st, id)
}

func (s *Store) readRecord(status task.Status, id string) (*task.Task, error) {
	data, err := os.ReadFile(s.recordPath(status, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("read record %s: %w", id, err)
	}
	t, err := task.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return t, nil
}

// List returns every task across all status buckets, sorted by id.
func (s *Store) List() ([]*task.Task, error) {
	var out []*task.Task
	for _, st := range task.AllStatuses {
		tasks, err := s.listStatus(st)
		if err != nil {
			return nil, err
		}
		out = append(out, tasks...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListStatus returns every task currently in the given status bucket.
func (s *Store) ListStatus(status task.Status) ([]*task.Task, error) {
	return s.listStatus(status)
}

func (s *Store) listStatus(status task.Status) ([]*task.Task, error) {
	entries, err := os.ReadDir(s.bucketPath(status))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", status, err)
	}
	var out []*task.Task
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		t, err := s.readRecord(status, e.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable task record", "id", e.Name(), "status", status, "error", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// CountByStatus returns the number of tasks in every status bucket.
func (s *Store) CountByStatus() (map[task.Status]int, error) {
	counts := make(map[task.Status]int, len(task.AllStatuses))
	for _, st := range task.AllStatuses {
		entries, err := os.ReadDir(s.bucketPath(st))
		if err != nil {
			if os.IsNotExist(err) {
				counts[st] = 0
				continue
			}
			return nil, fmt.Errorf("count %s: %w", st, err)
		}
		n := 0
		for _, e := range entries {
			if e.IsDir() {
				n++
			}
		}
		counts[st] = n
	}
	return counts, nil
}

func (s *Store) emitEvent(eventType, actor, taskID string, payload map[string]any) {
	if s.emit == nil {
		return
	}
	if _, err := s.emit.Emit(eventType, actor, taskID, payload); err != nil {
		s.logger.Warn("failed to emit event", "type", eventType, "task", taskID, "error", err)
	}
}

// GetTaskInputs enumerates the task's inputs/ side-channel folder.
func (s *Store) GetTaskInputs(id string) ([]string, error) {
	return s.listSideChannel(id, InputsDir)
}

// GetTaskOutputs enumerates the task's outputs/ side-channel folder.
func (s *Store) GetTaskOutputs(id string) ([]string, error) {
	return s.listSideChannel(id, OutputsDir)
}

func (s *Store) listSideChannel(id, sub string) ([]string, error) {
	st, ok := s.findStatus(id)
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	dir := filepath.Join(s.taskDir(st, id), sub)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s/%s: %w", id, sub, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// SideChannelPath returns the absolute path to a task's side-channel
// directory (inputs/work/outputs/subtasks), for callers (contextbuilder,
// protocol handoff) that need to read or write files directly.
func (s *Store) SideChannelPath(id, sub string) (string, error) {
	st, ok := s.findStatus(id)
	if !ok {
		return "", &NotFoundError{ID: id}
	}
	return filepath.Join(s.taskDir(st, id), sub), nil
}

// Root returns the store's data root directory.
func (s *Store) Root() string { return s.root }
