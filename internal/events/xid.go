// Package events carries the identifiers, envelopes and payloads exchanged by
// the gatekeeper service over its queues.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// XID provides globally unique, sortable identifiers.
// Format: 20 characters, base32-hex encoded, 12 bytes.
// IDs sort by creation time and need no coordination.

// RunID identifies one pipeline run over a batch of units.
type RunID struct {
	id xid.ID
}

// NewRunID generates a new run ID.
func NewRunID() RunID {
	return RunID{id: xid.New()}
}

// ParseRunID parses a run ID from string.
func ParseRunID(s string) (RunID, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return RunID{}, fmt.Errorf("invalid run ID %q: %w", s, err)
	}
	return RunID{id: id}, nil
}

// String returns the string representation.
func (r RunID) String() string {
	return r.id.String()
}

// Short returns the first 8 characters for human-readable contexts.
func (r RunID) Short() string {
	s := r.id.String()
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// Time returns the timestamp embedded in the ID.
func (r RunID) Time() time.Time {
	return r.id.Time()
}

// IsZero returns true if this is the zero value.
func (r RunID) IsZero() bool {
	return r.id.IsNil()
}

// MarshalJSON implements json.Marshaler.
func (r RunID) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RunID) UnmarshalJSON(data []byte) error {
	id, err := unmarshalXID(data)
	if err != nil {
		return err
	}
	r.id = id
	return nil
}

// EventID identifies one queue message; assessment requests reuse it as the
// idempotency key.
type EventID struct {
	id xid.ID
}

// NewEventID generates a new event ID.
func NewEventID() EventID {
	return EventID{id: xid.New()}
}

// ParseEventID parses an event ID from string.
func ParseEventID(s string) (EventID, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return EventID{}, fmt.Errorf("invalid event ID %q: %w", s, err)
	}
	return EventID{id: id}, nil
}

// String returns the string representation.
func (e EventID) String() string {
	return e.id.String()
}

// Time returns the timestamp embedded in the ID.
func (e EventID) Time() time.Time {
	return e.id.Time()
}

// IsZero returns true if this is the zero value.
func (e EventID) IsZero() bool {
	return e.id.IsNil()
}

// MarshalJSON implements json.Marshaler.
func (e EventID) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *EventID) UnmarshalJSON(data []byte) error {
	id, err := unmarshalXID(data)
	if err != nil {
		return err
	}
	e.id = id
	return nil
}

// unmarshalXID accepts a JSON string; the empty string decodes to the nil ID.
func unmarshalXID(data []byte) (xid.ID, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return xid.NilID(), err
	}
	if s == "" {
		return xid.NilID(), nil
	}
	return xid.FromString(s)
}
