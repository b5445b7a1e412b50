package gate

import (
	"fmt"
	"strings"

	"github.com/c360studio/aof/task"
)

// BuildContext turns (task, gate, workflow) into a human-readable brief an
// agent receives via spawnSession's gateContext field, so agents see their
// stage's expectations without reading raw workflow config.
func BuildContext(t *task.Task, current Def, w Workflow) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Gate: %s\n\n", current.ID)
	if current.Role != "" {
		fmt.Fprintf(&b, "Role: %s\n", current.Role)
	}
	if current.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", current.Description)
	}

	fmt.Fprintf(&b, "\n### Expectations\n\n")
	if current.RequireHuman {
		b.WriteString("- This gate requires human sign-off before it can complete.\n")
	}
	if current.CanReject {
		b.WriteString("- You may reject back to the workflow's origin gate with outcome `needs_review`.\n")
	} else {
		b.WriteString("- This gate cannot reject; report `blocked` if you cannot proceed.\n")
	}

	fmt.Fprintf(&b, "\n### Possible outcomes\n\n")
	b.WriteString("- `complete` — advance to the next applicable gate (or finish, if none remain)\n")
	if current.CanReject {
		b.WriteString("- `needs_review` — send back to the origin gate with blockers/notes\n")
	}
	b.WriteString("- `blocked` — stay at this gate; record blockers for a human or a later retry\n")

	if t.ReviewContext != nil {
		fmt.Fprintf(&b, "\n### Prior rejection\n\nRejected from `%s` by %s at %s:\n", t.ReviewContext.FromGate, t.ReviewContext.FromAgent, t.ReviewContext.Timestamp.Format("2006-01-02T15:04:05Z"))
		for _, bl := range t.ReviewContext.Blockers {
			fmt.Fprintf(&b, "- %s\n", bl)
		}
		if t.ReviewContext.Notes != "" {
			fmt.Fprintf(&b, "\nNotes: %s\n", t.ReviewContext.Notes)
		}
	}

	if idx := w.Index(current.ID); idx >= 0 && idx+1 < len(w.Gates) {
		fmt.Fprintf(&b, "\n### Tips\n\nNext stage after this one is `%s`; keep deliverables in outputs/ so it can pick them up.\n", w.Gates[idx+1].ID)
	}

	return b.String()
}
