package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("TASK-2026-07-31-001"))
	assert.True(t, ValidID("TASK-2026-07-31-0123"))
	assert.False(t, ValidID("TASK-2026-7-31-001"))
	assert.False(t, ValidID("task-2026-07-31-001"))
	assert.False(t, ValidID(""))
}

func TestNewID_DatePrefix(t *testing.T) {
	day := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	id := NewID(day, 7)
	assert.Equal(t, "TASK-2026-07-31-007", id)
	assert.True(t, ValidID(id))
	assert.Equal(t, "TASK-2026-07-31-", DatePrefix(day))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusBacklog, StatusReady))
	assert.True(t, CanTransition(StatusInProgress, StatusDeadletter))
	assert.False(t, CanTransition(StatusBacklog, StatusDone))
	assert.False(t, CanTransition(StatusDone, StatusReady), "done is terminal")
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusDeadletter.Terminal())
	assert.False(t, StatusReady.Terminal())
	assert.False(t, StatusBlocked.Terminal())
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	orig := &Task{
		ID:       "TASK-2026-07-31-001",
		Title:    "Wire up the gate evaluator",
		Status:   StatusReady,
		Priority: PriorityHigh,
		Routing:  Routing{Role: "reviewer", Tags: []string{"backend", "urgent"}},
		DependsOn: []string{"TASK-2026-07-30-002"},
		Metadata: Metadata{
			MetaRetryCount: 2,
			MetaKind:       "feature",
		},
		CreatedAt:        now,
		UpdatedAt:        now,
		LastTransitionAt: now,
		CreatedBy:        "tester",
		Body:             "## Notes\n\nSome free-form markdown body.\n",
	}

	data, err := Encode(orig)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Title, got.Title)
	assert.Equal(t, orig.Status, got.Status)
	assert.Equal(t, orig.Priority, got.Priority)
	assert.Equal(t, orig.Routing, got.Routing)
	assert.Equal(t, orig.DependsOn, got.DependsOn)
	assert.Equal(t, orig.CreatedBy, got.CreatedBy)
	assert.Equal(t, orig.Body, got.Body)
	assert.Equal(t, 2, got.Metadata.GetInt(MetaRetryCount))
	assert.Equal(t, "feature", got.Metadata.GetString(MetaKind))
	assert.True(t, orig.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, orig.UpdatedAt.Equal(got.UpdatedAt))
	assert.True(t, orig.LastTransitionAt.Equal(got.LastTransitionAt))
}

func TestEncodeDecode_PreservesUnknownFields(t *testing.T) {
	now := time.Now().UTC()
	orig := &Task{
		ID:               "TASK-2026-07-31-002",
		Title:            "T",
		Status:           StatusBacklog,
		Priority:         PriorityNormal,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastTransitionAt: now,
		Unknown:          map[string]any{"futureField": "keepme"},
	}

	data, err := Encode(orig)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "keepme", got.Unknown["futureField"])
}

func TestDecode_RejectsMissingFrontmatter(t *testing.T) {
	_, err := Decode([]byte("no frontmatter here"))
	assert.Error(t, err)
}

func TestValidate_LeaseStatusInvariant(t *testing.T) {
	now := time.Now().UTC()
	base := &Task{
		ID:               "TASK-2026-07-31-003",
		Title:            "T",
		Priority:         PriorityNormal,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastTransitionAt: now,
	}

	readyNoLease := base.Clone()
	readyNoLease.Status = StatusReady
	assert.NoError(t, Validate(readyNoLease))

	inProgressNoLease := base.Clone()
	inProgressNoLease.Status = StatusInProgress

	err := Validate(inProgressNoLease)
	assert.Error(t, err, "in-progress without a lease must fail validation")

	inProgressWithLease := base.Clone()
	inProgressWithLease.Status = StatusInProgress
	inProgressWithLease.Lease = &Lease{Agent: "agent-a", AcquiredAt: now, ExpiresAt: now.Add(time.Hour)}
	assert.NoError(t, Validate(inProgressWithLease))

	readyWithLease := base.Clone()
	readyWithLease.Status = StatusReady
	readyWithLease.Lease = &Lease{Agent: "agent-a", AcquiredAt: now, ExpiresAt: now.Add(time.Hour)}
	assert.Error(t, Validate(readyWithLease), "ready with a lease must fail validation")
}

func TestValidate_RejectsBadIDAndEnums(t *testing.T) {
	now := time.Now().UTC()
	bad := &Task{
		ID:               "not-a-valid-id",
		Title:            "T",
		Status:           StatusReady,
		Priority:         PriorityNormal,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastTransitionAt: now,
	}
	assert.Error(t, Validate(bad))

	badStatus := bad.Clone()
	badStatus.ID = "TASK-2026-07-31-004"
	badStatus.Status = "sideways"
	assert.Error(t, Validate(badStatus))

	badPriority := bad.Clone()
	badPriority.ID = "TASK-2026-07-31-005"
	badPriority.Status = StatusReady
	badPriority.Priority = "urgent!"
	assert.Error(t, Validate(badPriority))
}

func TestHasTag(t *testing.T) {
	tk := &Task{Routing: Routing{Tags: []string{"backend", "urgent"}}}
	assert.True(t, tk.HasTag("urgent"))
	assert.False(t, tk.HasTag("frontend"))
}
