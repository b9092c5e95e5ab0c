package events

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// Frame-Compatible Queue Configuration
// =============================================================================

// Queue names used by the gatekeeper.
const (
	QueueAssessmentRequests = "assessment.requests"
	QueueAssessmentResults  = "assessment.results"
)

// QueueConfig defines configuration for a queue using Frame primitives.
// Queue URIs support multiple backends: mem://, nats://, kafka://
type QueueConfig struct {
	// Name is the queue/topic name used for registration.
	Name string `json:"name"`

	// URI is the queue connection URI.
	URI string `json:"uri"`

	// RetentionDuration is how long to retain messages.
	RetentionDuration time.Duration `json:"retention_duration"`

	// Description describes the queue purpose.
	Description string `json:"description,omitempty"`
}

// DefaultQueueConfigs returns the in-memory queue layout.
func DefaultQueueConfigs() []QueueConfig {
	return []QueueConfig{
		{
			Name:              QueueAssessmentRequests,
			URI:               "mem://" + QueueAssessmentRequests,
			RetentionDuration: 24 * time.Hour,
			Description:       "Assessment requests accepted asynchronously",
		},
		{
			Name:              QueueAssessmentResults,
			URI:               "mem://" + QueueAssessmentResults,
			RetentionDuration: 7 * 24 * time.Hour,
			Description:       "Completed and failed assessments",
		},
	}
}

// =============================================================================
// Queue Publishing
// =============================================================================

// QueuePublisher is satisfied by Frame's queue manager.
type QueuePublisher interface {
	Publish(ctx context.Context, queueName string, payload any, headers ...map[string]string) error
}

// QueueHandler is the Frame subscriber contract.
type QueueHandler interface {
	Handle(ctx context.Context, headers map[string]string, payload []byte) error
}

// PublishEvent publishes an event envelope with its headers.
func PublishEvent(ctx context.Context, pub QueuePublisher, queueName string, event *Event) error {
	if err := pub.Publish(ctx, queueName, event, event.Headers()); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.EventType, queueName, err)
	}
	return nil
}
