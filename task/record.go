package task

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// frontmatterDelim separates the YAML metadata header from the free-form
// body in a task record file, matching the teacher's convention of a
// metadata block followed by markdown content.
const frontmatterDelim = "---"

// record is the on-disk shape of a task: everything in Task except Body,
// which is appended verbatim after the frontmatter delimiter.
type record struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Status   Status   `yaml:"status"`
	Priority Priority `yaml:"priority"`

	Routing   Routing  `yaml:"routing,omitempty"`
	DependsOn []string `yaml:"dependsOn,omitempty"`

	Lease *Lease `yaml:"lease,omitempty"`
	Gate  *Gate  `yaml:"gate,omitempty"`

	GateHistory   []GateHistoryEntry `yaml:"gateHistory,omitempty"`
	ReviewContext *ReviewContext     `yaml:"reviewContext,omitempty"`

	Metadata Metadata `yaml:"metadata,omitempty"`

	CreatedAt        string `yaml:"createdAt"`
	UpdatedAt        string `yaml:"updatedAt"`
	LastTransitionAt string `yaml:"lastTransitionAt"`
	CreatedBy        string `yaml:"createdBy,omitempty"`

	// Extra preserves unknown top-level fields across a read/write round
	// trip, so a hand-edited record never silently loses data.
	Extra map[string]any `yaml:",inline"`
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// Encode serializes t into the frontmatter+body record format.
func Encode(t *Task) ([]byte, error) {
	r := record{
		ID:                t.ID,
		Title:             t.Title,
		Status:            t.Status,
		Priority:          t.Priority,
		Routing:           t.Routing,
		DependsOn:         t.DependsOn,
		Lease:             t.Lease,
		Gate:              t.Gate,
		GateHistory:       t.GateHistory,
		ReviewContext:     t.ReviewContext,
		Metadata:          t.Metadata,
		CreatedAt:         t.CreatedAt.Format(timeLayout),
		UpdatedAt:         t.UpdatedAt.Format(timeLayout),
		LastTransitionAt:  t.LastTransitionAt.Format(timeLayout),
		CreatedBy:         t.CreatedBy,
	}

	if len(t.Unknown) > 0 {
		r.Extra = t.Unknown
	}

	header, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode task %s: %w", t.ID, err)
	}

	var buf strings.Builder
	buf.WriteString(frontmatterDelim)
	buf.WriteString("\n")
	buf.Write(header)
	buf.WriteString(frontmatterDelim)
	buf.WriteString("\n")
	buf.WriteString(t.Body)
	return []byte(buf.String()), nil
}

// Decode parses a task record file's raw bytes into a Task.
func Decode(data []byte) (*Task, error) {
	content := string(data)
	if !strings.HasPrefix(content, frontmatterDelim) {
		return nil, fmt.Errorf("decode task: missing frontmatter delimiter")
	}
	rest := strings.TrimPrefix(content, frontmatterDelim)
	rest = strings.TrimPrefix(rest, "\n")

	idx := strings.Index(rest, "\n"+frontmatterDelim)
	if idx < 0 {
		return nil, fmt.Errorf("decode task: unterminated frontmatter")
	}
	header := rest[:idx]
	body := rest[idx+len("\n"+frontmatterDelim):]
	body = strings.TrimPrefix(body, "\n")

	var r record
	if err := yaml.Unmarshal([]byte(header), &r); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}

	t := &Task{
		ID:            r.ID,
		Title:         r.Title,
		Status:        r.Status,
		Priority:      r.Priority,
		Routing:       r.Routing,
		DependsOn:     r.DependsOn,
		Lease:         r.Lease,
		Gate:          r.Gate,
		GateHistory:   r.GateHistory,
		ReviewContext: r.ReviewContext,
		Metadata:      r.Metadata,
		CreatedBy:     r.CreatedBy,
		Body:          body,
		Unknown:       r.Extra,
	}
	if t.Metadata == nil {
		t.Metadata = Metadata{}
	}

	var err error
	if t.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, fmt.Errorf("decode task %s: createdAt: %w", r.ID, err)
	}
	if t.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("decode task %s: updatedAt: %w", r.ID, err)
	}
	if t.LastTransitionAt, err = parseTime(r.LastTransitionAt); err != nil {
		return nil, fmt.Errorf("decode task %s: lastTransitionAt: %w", r.ID, err)
	}

	return t, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
