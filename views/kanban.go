// Package views implements the read-only kanban/mailbox projections the
// watch command renders; nothing here mutates the store.
package views

import (
	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

// Column is one status bucket's tasks, in store-list order.
type Column struct {
	Status task.Status
	Tasks  []*task.Task
}

// Kanban is a point-in-time snapshot of every status bucket.
type Kanban struct {
	Columns []Column
}

// BuildKanban projects the current store state into a Kanban board.
func BuildKanban(s *store.Store) (Kanban, error) {
	var board Kanban
	for _, status := range task.AllStatuses {
		tasks, err := s.ListStatus(status)
		if err != nil {
			return Kanban{}, err
		}
		board.Columns = append(board.Columns, Column{Status: status, Tasks: tasks})
	}
	return board, nil
}

// TotalTasks counts every task across every column.
func (k Kanban) TotalTasks() int {
	n := 0
	for _, c := range k.Columns {
		n += len(c.Tasks)
	}
	return n
}
