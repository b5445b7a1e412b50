// Package lease implements single-owner, time-bounded claims on tasks being
// processed by an agent (§4.2).
package lease

import (
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

// Sentinel error kinds.
var (
	ErrLeaseHeld          = errors.New("lease held by another agent")
	ErrWrongHolder        = errors.New("wrong lease holder")
	ErrRenewalsExhausted  = errors.New("lease renewals exhausted")
)

// DefaultTTL and DefaultMaxRenewals are applied when a caller passes zero
// values to Acquire/Renew.
const (
	DefaultTTL         = 15 * time.Minute
	DefaultMaxRenewals = 8
)

// Manager wraps a Store with the lease state-machine operations.
type Manager struct {
	store *store.Store
}

// New creates a lease Manager backed by s.
func New(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Acquire claims id for agent, succeeding only if the task is ready or
// carries an already-expired lease. The lease and the in-progress
// transition are written in a single atomic record write.
func (m *Manager) Acquire(id, agent string, ttl time.Duration, maxRenewals int) (*task.Task, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxRenewals <= 0 {
		maxRenewals = DefaultMaxRenewals
	}

	current, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	if current.Status == task.StatusInProgress {
		if current.Lease != nil && time.Now().Before(current.Lease.ExpiresAt) {
			return nil, fmt.Errorf("task %s: %w (held by %s until %s)", id, ErrLeaseHeld, current.Lease.Agent, current.Lease.ExpiresAt)
		}
	} else if current.Status != task.StatusReady {
		return nil, fmt.Errorf("task %s: cannot acquire lease from status %s", id, current.Status)
	}

	now := time.Now().UTC()
	newLease := &task.Lease{Agent: agent, AcquiredAt: now, ExpiresAt: now.Add(ttl), RenewCount: 0}

	if current.Status == task.StatusInProgress {
		// Expired lease on an in-progress task: reclaim in place without a
		// status transition (the task never left in-progress).
		return m.store.Update(id, func(t *task.Task) { t.Lease = newLease })
	}

	return m.store.TransitionFunc(id, task.StatusInProgress, store.TransitionOpts{Actor: agent}, func(t *task.Task) {
		t.Lease = newLease
	})
}

// Renew extends id's lease for agent, incrementing renewCount. Fails if
// renewCount would reach maxRenewals, or if agent does not hold the lease.
func (m *Manager) Renew(id, agent string, ttl time.Duration, maxRenewals int) (*task.Task, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxRenewals <= 0 {
		maxRenewals = DefaultMaxRenewals
	}

	current, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if current.Lease == nil || current.Lease.Agent != agent {
		return nil, fmt.Errorf("task %s: %w", id, ErrWrongHolder)
	}
	if current.Lease.RenewCount+1 >= maxRenewals {
		return nil, fmt.Errorf("task %s: %w (max %d)", id, ErrRenewalsExhausted, maxRenewals)
	}

	now := time.Now().UTC()
	return m.store.Update(id, func(t *task.Task) {
		t.Lease.ExpiresAt = now.Add(ttl)
		t.Lease.RenewCount++
	})
}

// Release clears id's lease and transitions it back to ready. Requires agent
// to be the current holder.
func (m *Manager) Release(id, agent string) (*task.Task, error) {
	current, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if current.Lease == nil || current.Lease.Agent != agent {
		return nil, fmt.Errorf("task %s: %w", id, ErrWrongHolder)
	}

	return m.store.TransitionFunc(id, task.StatusReady, store.TransitionOpts{Actor: agent, Reason: "lease released"}, func(t *task.Task) {
		t.Lease = nil
	})
}

// FindExpired is a pure predicate: it returns the subset of in-progress
// tasks whose lease has passed expiry as of now. It performs no I/O, so the
// scheduler can call it during action planning (including dry-run) without
// mutating the store.
func FindExpired(inProgress []*task.Task, now time.Time) []*task.Task {
	var out []*task.Task
	for _, t := range inProgress {
		if t.Lease != nil && now.After(t.Lease.ExpiresAt) {
			out = append(out, t)
		}
	}
	return out
}

// Reclaim clears id's lease and transitions it back to ready. Used by the
// scheduler's execute phase to apply a previously planned expire_lease
// action.
func (m *Manager) Reclaim(id, reason string) (*task.Task, error) {
	return m.store.TransitionFunc(id, task.StatusReady, store.TransitionOpts{
		Actor:  "lease-manager",
		Reason: reason,
	}, func(rt *task.Task) {
		rt.Lease = nil
	})
}
