package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewRegistry_CountersStartAtZero(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, float64(0), testutil.ToFloat64(r.PollsTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.ActionsExecuted))
}

func TestNewRegistry_CountersIncrement(t *testing.T) {
	r := NewRegistry()
	r.PollsTotal.Inc()
	r.PollsTotal.Inc()
	r.ActionsExecuted.Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(r.PollsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.ActionsExecuted))
}

func TestNewRegistry_GaugesSettable(t *testing.T) {
	r := NewRegistry()
	r.TasksInProgress.Set(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(r.TasksInProgress))
}
