// Package store implements the durable task store: a filesystem layout
// under tasks/<status>/<task-id> with atomic rename-based transitions.
package store

import (
	"path/filepath"

	"github.com/c360studio/aof/task"
)

// TasksDir is the directory name under the data root holding status buckets.
const TasksDir = "tasks"

// Side-channel folder names created alongside a task's record directory.
const (
	InputsDir   = "inputs"
	WorkDir     = "work"
	OutputsDir  = "outputs"
	SubtasksDir = "subtasks"
)

// recordFileName is the task record's file name inside its own directory.
const recordFileName = "task.md"

// bucketPath returns the directory holding every task in status.
func (s *Store) bucketPath(status task.Status) string {
	return filepath.Join(s.root, TasksDir, string(status))
}

// taskDir returns the directory for a single task record and its
// side-channel folders, under the given status bucket.
func (s *Store) taskDir(status task.Status, id string) string {
	return filepath.Join(s.bucketPath(status), id)
}

// recordPath returns the record file path for a task under the given status.
func (s *Store) recordPath(status task.Status, id string) string {
	return filepath.Join(s.taskDir(status, id), recordFileName)
}

// RecordPath returns id's current record file path, for callers (the
// dispatch executor) that need to read the pre-serialized task file once
// before a state transition (§4.5).
func (s *Store) RecordPath(id string) (string, error) {
	status, ok := s.findStatus(id)
	if !ok {
		return "", &NotFoundError{ID: id}
	}
	return s.recordPath(status, id), nil
}
