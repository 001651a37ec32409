package mcp

import (
	"sync"
	"time"

	"vizflow/internal/logging"
)

// Event is one entry of the tool call log.
type Event struct {
	Timestamp string            `json:"ts"`
	Tool      string            `json:"tool"`
	GoalID    string            `json:"goal_id,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// EventLog is a thread-safe, append-only record of tool calls. Agents read
// it with get_events to follow what other clients did to the session.
type EventLog struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

func (l *EventLog) Emit(tool, goalID string, meta map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	l.events = append(l.events, Event{
		Timestamp: now().UTC().Format(time.RFC3339),
		Tool:      tool,
		GoalID:    goalID,
		Meta:      meta,
	})
}

// Since returns a copy of the events from idx onward. A negative idx is
// clamped to zero.
func (l *EventLog) Since(idx int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if idx < 0 {
		logging.New("mcp").Warn("event log read with negative index, clamping to 0", "idx", idx)
		idx = 0
	}
	if idx >= len(l.events) {
		return nil
	}
	out := make([]Event, len(l.events)-idx)
	copy(out, l.events[idx:])
	return out
}

func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
