// Package realtime delivers row-change events (new posts, messages,
// notifications, ...) to connected clients over WebSockets.
//
// Services publish an Event after a write commits. The Hub assigns each event
// a monotonically increasing sequence number and fans it out to every
// subscription whose topic matches. Clients order events against REST
// fetches with seq and drop anything at or below the last seq they applied.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Event is a single row change.
//
// Audience, when non-empty, makes the event private: it is delivered only to
// subscribers authenticated as one of the listed users.
type Event struct {
	Seq       uint64          `json:"seq"`
	Table     string          `json:"table"`
	Type      EventType       `json:"type"`
	Record    json.RawMessage `json:"record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
	Audience  []string        `json:"audience,omitempty"`
	At        time.Time       `json:"at"`

	// Origin is the instance that produced the event; empty for local events.
	Origin string `json:"-"`

	fields    map[string]any
	oldFields map[string]any
}

// NewEvent builds an event for table from a record value (usually a domain
// model). old may be nil.
func NewEvent(table string, typ EventType, record, old any, audience ...string) (Event, error) {
	ev := Event{Table: table, Type: typ, Audience: audience}
	if record != nil {
		b, err := json.Marshal(record)
		if err != nil {
			return Event{}, fmt.Errorf("marshal record: %w", err)
		}
		ev.Record = b
	}
	if old != nil {
		b, err := json.Marshal(old)
		if err != nil {
			return Event{}, fmt.Errorf("marshal old record: %w", err)
		}
		ev.OldRecord = b
	}
	return ev, nil
}

// IsPrivate reports whether the event has a restricted audience.
func (e Event) IsPrivate() bool { return len(e.Audience) > 0 }

// visibleTo reports whether userID may receive the event.
func (e Event) visibleTo(userID string) bool {
	if !e.IsPrivate() {
		return true
	}
	for _, id := range e.Audience {
		if id == userID {
			return true
		}
	}
	return false
}

// decode parses Record and OldRecord once so topic filters can read columns.
func (e *Event) decode() {
	if e.fields == nil && len(e.Record) > 0 {
		_ = json.Unmarshal(e.Record, &e.fields)
	}
	if e.oldFields == nil && len(e.OldRecord) > 0 {
		_ = json.Unmarshal(e.OldRecord, &e.oldFields)
	}
}

// column returns a record column as a string. DELETE events fall back to
// the old record.
func (e *Event) column(name string) (string, bool) {
	v, ok := e.fields[name]
	if !ok {
		v, ok = e.oldFields[name]
	}
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		return fmt.Sprint(t), true
	}
}

// ErrInvalidTopic is returned for malformed subscriptions.
var ErrInvalidTopic = errors.New("invalid topic")

// Topic selects events by table, change type, and an optional column filter
// of the form "<column>=eq.<value>".
type Topic struct {
	Table  string `json:"table"`
	Event  string `json:"event,omitempty"`
	Filter string `json:"filter,omitempty"`
}

type matcher struct {
	table  string
	event  EventType // empty means any
	column string
	value  string
}

// compile validates t.
func (t Topic) compile() (matcher, error) {
	m := matcher{table: strings.TrimSpace(t.Table)}
	if m.table == "" {
		return matcher{}, fmt.Errorf("%w: table is required", ErrInvalidTopic)
	}
	switch ev := EventType(strings.ToUpper(strings.TrimSpace(t.Event))); ev {
	case "", "*":
	case Insert, Update, Delete:
		m.event = ev
	default:
		return matcher{}, fmt.Errorf("%w: unknown event %q", ErrInvalidTopic, t.Event)
	}
	if f := strings.TrimSpace(t.Filter); f != "" {
		col, rest, ok := strings.Cut(f, "=")
		val, isEq := strings.CutPrefix(rest, "eq.")
		col = strings.TrimSpace(col)
		if !ok || !isEq || col == "" {
			return matcher{}, fmt.Errorf("%w: filter must be <column>=eq.<value>", ErrInvalidTopic)
		}
		m.column, m.value = col, val
	}
	return m, nil
}

// Validate reports whether t is well formed.
func (t Topic) Validate() error {
	_, err := t.compile()
	return err
}

func (m matcher) match(e *Event) bool {
	if m.table != e.Table {
		return false
	}
	if m.event != "" && m.event != e.Type {
		return false
	}
	if m.column == "" {
		return true
	}
	v, ok := e.column(m.column)
	return ok && v == m.value
}
