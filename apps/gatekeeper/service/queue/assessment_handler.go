package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/util"

	appconfig "github.com/antinvestor/releasegate/apps/gatekeeper/config"
	"github.com/antinvestor/releasegate/apps/gatekeeper/service/assessment"
	"github.com/antinvestor/releasegate/internal/events"
)

// Failure codes published with AssessmentFailed events.
const (
	FailureInvalidPayload = "invalid_payload"
	FailureModification   = "modification_unavailable"
	FailureAssessment     = "assessment_failed"
)

// AssessmentRequestHandler consumes assessment requests from the queue and
// publishes their results. Each request is evaluated at most once; its outcome
// is re-published on redelivery until a publish succeeds.
type AssessmentRequestHandler struct {
	cfg       *appconfig.GatekeeperConfig
	evaluator *assessment.Evaluator
	processor *events.IdempotentProcessor
	publisher events.QueuePublisher
}

// NewAssessmentRequestHandler creates a new queue handler.
func NewAssessmentRequestHandler(
	cfg *appconfig.GatekeeperConfig,
	evaluator *assessment.Evaluator,
	store events.DeduplicationStore,
	publisher events.QueuePublisher,
) *AssessmentRequestHandler {
	return &AssessmentRequestHandler{
		cfg:       cfg,
		evaluator: evaluator,
		processor: events.NewIdempotentProcessor(store),
		publisher: publisher,
	}
}

// Handle processes one queued assessment request. Malformed messages are
// dropped since redelivery cannot fix them.
func (h *AssessmentRequestHandler) Handle(
	ctx context.Context,
	headers map[string]string,
	payload []byte,
) error {
	log := util.Log(ctx)

	event, err := events.DecodeEvent(payload)
	if err != nil {
		log.WithError(err).Error("dropping undecodable assessment message",
			"event_id", headers[events.HeaderEventID],
		)
		return nil
	}
	log = log.WithField("request_id", event.EventID.String())

	if event.EventType != events.AssessmentRequested {
		log.Warn("ignoring unexpected event type", "event_type", event.EventType)
		return nil
	}

	runID := event.RunID
	if runID.IsZero() {
		runID = events.NewRunID()
	}
	log = log.WithField("run_id", runID.String())

	ran, err := h.processor.ProcessAndDeliver(ctx, event.EventID,
		func(ctx context.Context) (events.RunID, json.RawMessage, error) {
			outcome, evalErr := h.outcome(ctx, event, runID)
			if evalErr != nil {
				return runID, nil, evalErr
			}
			data, marshalErr := json.Marshal(outcome)
			if marshalErr != nil {
				return runID, nil, fmt.Errorf("marshal outcome event: %w", marshalErr)
			}
			return runID, data, nil
		},
		func(ctx context.Context, data json.RawMessage) error {
			outcome, decodeErr := events.DecodeEvent(data)
			if decodeErr != nil {
				return decodeErr
			}
			return events.PublishEvent(ctx, h.publisher, h.cfg.QueueAssessmentResultName, outcome)
		},
	)

	switch {
	case err != nil && ctx.Err() != nil:
		// Shutdown; leave the message for redelivery.
		return err
	case errors.Is(err, events.ErrPreviouslyFailed):
		log.WithError(err).Warn("assessment request without a deliverable outcome skipped")
		return nil
	case err != nil:
		log.WithError(err).Error("assessment outcome not delivered, awaiting redelivery")
		return err
	case !ran:
		log.Info("duplicate assessment request skipped")
		return nil
	}

	log.Info("assessment request completed")
	return nil
}

// outcome evaluates a request into the event to publish: AssessmentCompleted
// on success, AssessmentFailed otherwise. Only cancellation is returned as an
// error.
func (h *AssessmentRequestHandler) outcome(
	ctx context.Context,
	request *events.Event,
	runID events.RunID,
) (*events.Event, error) {
	log := util.Log(ctx)

	var payload events.AssessmentRequestedPayload
	if err := request.UnmarshalPayload(&payload); err != nil {
		log.WithError(err).Error("invalid assessment request payload")
		return h.failure(request.EventID, runID, FailureInvalidPayload, err)
	}

	result, err := h.evaluator.Evaluate(ctx, request.EventID, runID, &payload)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		log.WithError(err).Error("assessment request failed")
		code := FailureAssessment
		if errors.Is(err, assessment.ErrModificationUnavailable) {
			code = FailureModification
		}
		return h.failure(request.EventID, runID, code, err)
	}

	return events.NewEventBuilder(events.AssessmentCompleted).
		WithRunID(runID).
		WithCausation(request.EventID).
		WithPayload(result).
		Build()
}

func (h *AssessmentRequestHandler) failure(
	requestID events.EventID,
	runID events.RunID,
	code string,
	cause error,
) (*events.Event, error) {
	failed, err := events.NewEventBuilder(events.AssessmentFailed).
		WithRunID(runID).
		WithCausation(requestID).
		WithPayload(events.AssessmentFailedPayload{
			RequestID: requestID,
			RunID:     runID,
			Code:      code,
			Message:   cause.Error(),
			FailedAt:  time.Now(),
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build failure event: %w", err)
	}
	return failed, nil
}
