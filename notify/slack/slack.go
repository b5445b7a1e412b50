// Package slack implements a notify(event) adapter that posts alert-worthy
// events to a Slack channel via github.com/slack-go/slack. It exercises the
// events.Notifier interface with a concrete chat-bridge adapter; spec.md
// names notification adapters as an out-of-core collaborator, so this
// package is intentionally minimal and filters to the events an operator
// actually wants paged on.
package slack

import (
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/c360studio/aof/events"
)

// alertTypes are the event types worth a Slack message; routine scheduler
// bookkeeping is not.
var alertTypes = map[string]bool{
	events.TypeTaskDeadletter:        true,
	events.TypeSLAViolation:          true,
	events.TypeDispatchUnassigned:    true,
	events.TypeSessionForceCompleted: true,
}

// Notifier posts alert-worthy events to a single Slack channel.
type Notifier struct {
	client  *slackapi.Client
	channel string
}

// New creates a Notifier that posts to channel using token.
func New(token, channel string) *Notifier {
	return &Notifier{client: slackapi.New(token), channel: channel}
}

// Notify implements events.Notifier. Non-alert event types are dropped
// without error.
func (n *Notifier) Notify(e events.Event) error {
	if !alertTypes[e.Type] {
		return nil
	}
	text := fmt.Sprintf(":rotating_light: %s", e.Type)
	if e.TaskID != "" {
		text += fmt.Sprintf(" — task `%s`", e.TaskID)
	}
	if reason, ok := e.Payload["reason"].(string); ok && reason != "" {
		text += fmt.Sprintf(": %s", reason)
	}
	_, _, err := n.client.PostMessage(n.channel, slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}
