package murmur

import (
	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/task"
)

// Trigger types (mirrors config.Trigger.Type; duplicated here as constants
// so callers don't need to import config just for the string literals).
const (
	TriggerQueueEmpty      = "queueEmpty"
	TriggerCompletionBatch = "completionBatch"
	TriggerFailureBatch    = "failureBatch"
)

// Evaluate walks team's triggers in order and returns the first one that
// fires, or ok=false if none do. teamTasks is every task currently routed to
// the team (any status); it is used only for the queueEmpty check.
func Evaluate(team config.Team, state TeamState, teamTasks []*task.Task) (config.Trigger, bool) {
	if state.InReview() {
		return config.Trigger{}, false
	}

	for _, trig := range team.Murmur.Triggers {
		switch trig.Type {
		case TriggerQueueEmpty:
			if queueEmpty(teamTasks) {
				return trig, true
			}
		case TriggerCompletionBatch:
			if state.CompletionsSinceLastReview >= trig.Threshold {
				return trig, true
			}
		case TriggerFailureBatch:
			if state.FailuresSinceLastReview >= trig.Threshold {
				return trig, true
			}
		}
	}
	return config.Trigger{}, false
}

func queueEmpty(teamTasks []*task.Task) bool {
	for _, t := range teamTasks {
		if t.Status == task.StatusReady || t.Status == task.StatusInProgress {
			return false
		}
	}
	return true
}
