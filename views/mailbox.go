package views

import (
	"github.com/c360studio/aof/events"
)

// Mailbox is a filtered slice of the event log: messages addressed to, or
// originated by, a single agent.
type Mailbox struct {
	Agent  string
	Events []events.Event
}

// BuildMailbox tails the event log and keeps only events whose actor or
// payload "agent"/"toAgent"/"fromAgent" field matches agent. An empty agent keeps
// everything (a firehose view of the whole event stream).
func BuildMailbox(root, agent string, limit int) (Mailbox, error) {
	all, err := events.Tail(root, limit*4+limit)
	if err != nil {
		return Mailbox{}, err
	}

	if agent == "" {
		if len(all) > limit {
			all = all[len(all)-limit:]
		}
		return Mailbox{Agent: agent, Events: all}, nil
	}

	var filtered []events.Event
	for _, e := range all {
		if matchesAgent(e, agent) {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return Mailbox{Agent: agent, Events: filtered}, nil
}

func matchesAgent(e events.Event, agent string) bool {
	if e.Actor == agent {
		return true
	}
	if e.Payload == nil {
		return false
	}
	for _, key := range []string{"agent", "toAgent", "fromAgent"} {
		if v, ok := e.Payload[key].(string); ok && v == agent {
			return true
		}
	}
	return false
}
