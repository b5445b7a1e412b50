package store

import (
	"fmt"

	"github.com/c360studio/aof/task"
)

// ComputeReadyTasks returns every backlog task whose dependsOn are all done,
// i.e. the set eligible for promotion to ready.
func (s *Store) ComputeReadyTasks() ([]*task.Task, error) {
	backlog, err := s.listStatus(task.StatusBacklog)
	if err != nil {
		return nil, err
	}
	if len(backlog) == 0 {
		return nil, nil
	}

	done, err := s.listStatus(task.StatusDone)
	if err != nil {
		return nil, err
	}
	doneSet := make(map[string]bool, len(done))
	for _, t := range done {
		doneSet[t.ID] = true
	}

	var ready []*task.Task
	for _, t := range backlog {
		if allDone(t.DependsOn, doneSet) {
			ready = append(ready, t)
		}
	}
	return ready, nil
}

func allDone(deps []string, doneSet map[string]bool) bool {
	for _, d := range deps {
		if !doneSet[d] {
			return false
		}
	}
	return true
}

// AddDependency appends depID to t's dependsOn after verifying it would not
// introduce a cycle through the full dependency graph.
func (s *Store) AddDependency(id, depID string) (*task.Task, error) {
	if id == depID {
		return nil, fmt.Errorf("task %s cannot depend on itself", id)
	}

	all, err := s.List()
	if err != nil {
		return nil, err
	}
	graph := make(map[string][]string, len(all))
	for _, t := range all {
		graph[t.ID] = t.DependsOn
	}
	// Simulate adding the edge id -> depID before checking for cycles.
	graph[id] = append(append([]string(nil), graph[id]...), depID)

	if dfsCycle(graph, id, id, map[string]bool{}) {
		return nil, fmt.Errorf("adding dependency %s -> %s would create a cycle", id, depID)
	}

	return s.Update(id, func(t *task.Task) {
		for _, d := range t.DependsOn {
			if d == depID {
				return
			}
		}
		t.DependsOn = append(t.DependsOn, depID)
	})
}

// RemoveDependency removes depID from t's dependsOn, if present.
func (s *Store) RemoveDependency(id, depID string) (*task.Task, error) {
	return s.Update(id, func(t *task.Task) {
		out := t.DependsOn[:0]
		for _, d := range t.DependsOn {
			if d != depID {
				out = append(out, d)
			}
		}
		t.DependsOn = out
	})
}

// dfsCycle does a DFS from node over graph looking for a path back to start,
// i.e. a cycle reachable from start.
func dfsCycle(graph map[string][]string, start, node string, seen map[string]bool) bool {
	if seen[node] {
		return false
	}
	seen[node] = true
	for _, next := range graph[node] {
		if next == start {
			return true
		}
		if dfsCycle(graph, start, next, seen) {
			return true
		}
	}
	return false
}
