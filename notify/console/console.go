// Package console implements a notify(event) adapter that prints
// human-readable lines to an io.Writer. It is the default, always-available
// notifier; chat-bridge adapters such as notify/slack plug in through the
// same events.Notifier interface.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/c360studio/aof/events"
)

// Notifier writes one line per event to w.
type Notifier struct {
	mu sync.Mutex
	w  io.Writer
}

// New creates a console Notifier writing to w.
func New(w io.Writer) *Notifier {
	return &Notifier{w: w}
}

// Notify implements events.Notifier.
func (n *Notifier) Notify(e events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if e.TaskID != "" {
		_, err := fmt.Fprintf(n.w, "[%s] #%d %s task=%s actor=%s\n", e.Timestamp.Format("15:04:05"), e.EventID, e.Type, e.TaskID, e.Actor)
		return err
	}
	_, err := fmt.Fprintf(n.w, "[%s] #%d %s actor=%s\n", e.Timestamp.Format("15:04:05"), e.EventID, e.Type, e.Actor)
	return err
}
