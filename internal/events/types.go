package events

import "strings"

// EventType identifies the type of event.
// Format: {domain}.{aggregate}.{action}.
type EventType string

// Event type constants.
const (
	// AssessmentRequested asks for a batch of units to be assessed.
	AssessmentRequested EventType = "release.assessment.requested"

	// AssessmentCompleted carries the scored result of a request.
	AssessmentCompleted EventType = "release.assessment.completed"

	// AssessmentFailed reports a request that could not be assessed.
	AssessmentFailed EventType = "release.assessment.failed"
)

// String returns the string representation.
func (t EventType) String() string {
	return string(t)
}

// Domain returns the domain component of the event type.
func (t EventType) Domain() string {
	domain, _, _ := strings.Cut(string(t), ".")
	return domain
}

// IsTerminalEvent returns true if no further events follow for the request.
func (t EventType) IsTerminalEvent() bool {
	switch t {
	case AssessmentCompleted, AssessmentFailed:
		return true
	default:
		return false
	}
}

// AllEventTypes returns every known event type.
func AllEventTypes() []EventType {
	return []EventType{AssessmentRequested, AssessmentCompleted, AssessmentFailed}
}

// ParseEventType resolves a header value to a known event type.
func ParseEventType(s string) (EventType, bool) {
	for _, t := range AllEventTypes() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}
