package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventsDir is the directory name under the data root holding daily streams.
const EventsDir = "events"

// Notifier fans an event out to an external sink (console, chat bridge, …).
// Implementations must not block the logger for long; Logger.Emit calls
// Notify synchronously but logs and swallows notifier errors per §7 ("logging
// failures are swallowed silently; must never crash a mutation").
type Notifier interface {
	Notify(e Event) error
}

// Logger appends events to daily-rolled <root>/events/YYYY-MM-DD.jsonl files
// and fans each one out to zero or more notifiers.
type Logger struct {
	root      string
	logger    *slog.Logger
	notifiers []Notifier

	mu      sync.Mutex
	day     string
	nextID  int
	file    *os.File
}

// NewLogger creates a Logger rooted at <root>/events.
func NewLogger(root string, logger *slog.Logger, notifiers ...Notifier) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{root: root, logger: logger, notifiers: notifiers}
}

func (l *Logger) path(day string) string {
	return filepath.Join(l.root, EventsDir, day+".jsonl")
}

// rollLocked ensures the logger's open file and sequence counter match
// today's stream, rotating (and recounting from existing content) on day
// boundaries. Caller must hold l.mu.
func (l *Logger) rollLocked(now time.Time) error {
	day := now.UTC().Format("2006-01-02")
	if day == l.day && l.file != nil {
		return nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if err := os.MkdirAll(filepath.Join(l.root, EventsDir), 0o755); err != nil {
		return fmt.Errorf("create events dir: %w", err)
	}

	path := l.path(day)
	maxID, err := lastEventID(path)
	if err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	l.file = f
	l.day = day
	l.nextID = maxID + 1
	return nil
}

// lastEventID scans an existing jsonl stream for its highest eventId, or 0
// if the file does not yet exist. Used on rotation/restart so eventId stays
// monotonic within a day across process restarts.
func lastEventID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	max := 0
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var e Event
		if err := dec.Decode(&e); err != nil {
			break
		}
		if e.EventID > max {
			max = e.EventID
		}
	}
	return max, nil
}

// Emit appends a new event with a fresh monotonic eventId and fans it out to
// configured notifiers. Emit never returns an error that callers should
// treat as fatal to the mutation that triggered it — write failures are
// returned so the caller can log them, but the engine's propagation policy
// is that logging/notification failures never crash a mutation (§7).
func (l *Logger) Emit(eventType, actor, taskID string, payload map[string]any) (Event, error) {
	now := time.Now().UTC()

	l.mu.Lock()
	if err := l.rollLocked(now); err != nil {
		l.mu.Unlock()
		return Event{}, err
	}
	id := l.nextID
	l.nextID++
	f := l.file
	l.mu.Unlock()

	e := Event{
		EventID:   id,
		Type:      eventType,
		Timestamp: now,
		Actor:     actor,
		TaskID:    taskID,
		Payload:   payload,
	}

	line, err := json.Marshal(e)
	if err != nil {
		return Event{}, fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	_, werr := f.Write(line)
	l.mu.Unlock()
	if werr != nil {
		return Event{}, fmt.Errorf("write event: %w", werr)
	}

	for _, n := range l.notifiers {
		if err := n.Notify(e); err != nil {
			l.logger.Warn("notifier failed", "type", eventType, "error", err)
		}
	}

	return e, nil
}

// Close releases the logger's open file handle, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
