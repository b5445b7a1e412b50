package task

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// schema mirrors Task's required-field shape for validator/v10 struct-tag
// validation, decoupled from the YAML/JSON tags used for persistence.
type schema struct {
	ID       string `validate:"required"`
	Title    string `validate:"required"`
	Status   string `validate:"required"`
	Priority string `validate:"required"`
}

// Validate checks the task's structural invariants: required fields, valid
// enum members, and the lease-implies-in-progress invariant. It does not
// check workflow-specific invariants (gate membership); store.Lint runs this
// same check over every record and does not check gate membership either.
func Validate(t *Task) error {
	if t == nil {
		return fmt.Errorf("task is nil")
	}
	s := schema{ID: t.ID, Title: t.Title, Status: string(t.Status), Priority: string(t.Priority)}
	if err := getValidator().Struct(s); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if !ValidID(t.ID) {
		return fmt.Errorf("invalid task id %q: want TASK-yyyy-mm-dd-nnn", t.ID)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	hasLease := t.Lease != nil
	isInProgress := t.Status == StatusInProgress
	if hasLease != isInProgress {
		return fmt.Errorf("lease/status invariant violated: lease=%v status=%s", hasLease, t.Status)
	}
	return nil
}
