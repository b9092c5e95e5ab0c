package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the payload schema written by this build.
const SchemaVersion = "1.0.0"

// Header names set on every published message.
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderRunID         = "run_id"
	HeaderSchemaVersion = "schema_version"
)

// Envelope errors.
var (
	ErrChecksumMismatch = errors.New("payload checksum mismatch")
	ErrMissingPayload   = errors.New("payload is required")
)

// Event is the envelope for every queue message.
type Event struct {
	// EventID is the globally unique event identifier.
	EventID EventID `json:"event_id"`

	// RunID groups the events of one assessment run.
	RunID RunID `json:"run_id"`

	// EventType determines the payload type.
	EventType EventType `json:"event_type"`

	// SchemaVersion is the semantic version of the payload schema.
	SchemaVersion string `json:"schema_version"`

	// CausationID is the event that directly caused this one.
	CausationID EventID `json:"causation_id,omitempty"`

	// CreatedAt is the wall clock time the event was built.
	CreatedAt time.Time `json:"created_at"`

	// Payload is the JSON-encoded payload.
	Payload json.RawMessage `json:"payload"`

	// PayloadChecksum is the SHA-256 of Payload.
	PayloadChecksum string `json:"payload_checksum"`
}

// EventBuilder provides a fluent interface for constructing events.
type EventBuilder struct {
	event Event
	err   error
}

// NewEventBuilder creates a builder for an event of the given type.
func NewEventBuilder(t EventType) *EventBuilder {
	return &EventBuilder{
		event: Event{
			EventID:       NewEventID(),
			EventType:     t,
			SchemaVersion: SchemaVersion,
			CreatedAt:     time.Now().UTC(),
		},
	}
}

// WithEventID overrides the generated event ID.
func (b *EventBuilder) WithEventID(id EventID) *EventBuilder {
	b.event.EventID = id
	return b
}

// WithRunID sets the run the event belongs to.
func (b *EventBuilder) WithRunID(id RunID) *EventBuilder {
	b.event.RunID = id
	return b
}

// WithCausation sets the causation ID.
func (b *EventBuilder) WithCausation(id EventID) *EventBuilder {
	b.event.CausationID = id
	return b
}

// WithPayload sets the event payload.
func (b *EventBuilder) WithPayload(payload any) *EventBuilder {
	if b.err != nil {
		return b
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.err = fmt.Errorf("marshal payload: %w", err)
		return b
	}

	b.event.Payload = data
	b.event.PayloadChecksum = computeChecksum(data)
	return b
}

// Build constructs the final event.
func (b *EventBuilder) Build() (*Event, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.event.EventType == "" {
		return nil, errors.New("event type is required")
	}
	if len(b.event.Payload) == 0 {
		return nil, ErrMissingPayload
	}

	event := b.event
	return &event, nil
}

// computeChecksum computes SHA-256 checksum of data.
func computeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifyChecksum verifies the payload checksum.
func (e *Event) VerifyChecksum() bool {
	return e.PayloadChecksum == computeChecksum(e.Payload)
}

// UnmarshalPayload verifies the checksum and decodes the payload into v.
func (e *Event) UnmarshalPayload(v any) error {
	if len(e.Payload) == 0 {
		return ErrMissingPayload
	}
	if !e.VerifyChecksum() {
		return fmt.Errorf("%w: event %s", ErrChecksumMismatch, e.EventID)
	}
	return json.Unmarshal(e.Payload, v)
}

// Headers returns the queue headers describing the event.
func (e *Event) Headers() map[string]string {
	headers := map[string]string{
		HeaderEventID:       e.EventID.String(),
		HeaderEventType:     e.EventType.String(),
		HeaderSchemaVersion: e.SchemaVersion,
	}
	if !e.RunID.IsZero() {
		headers[HeaderRunID] = e.RunID.String()
	}
	return headers
}

// DecodeEvent parses a queue message body into an event.
func DecodeEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &event, nil
}
