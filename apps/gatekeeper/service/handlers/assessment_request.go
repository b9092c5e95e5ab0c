package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pitabwire/util"

	appconfig "github.com/antinvestor/releasegate/apps/gatekeeper/config"
	"github.com/antinvestor/releasegate/apps/gatekeeper/middleware"
	"github.com/antinvestor/releasegate/apps/gatekeeper/service/assessment"
	"github.com/antinvestor/releasegate/internal/events"
)

// AssessmentRequestHandler accepts assessment requests over HTTP. Synchronous
// requests are scored inline; async requests are queued.
type AssessmentRequestHandler struct {
	cfg       *appconfig.GatekeeperConfig
	evaluator *assessment.Evaluator
	publisher events.QueuePublisher
	validate  *validator.Validate
}

// NewAssessmentRequestHandler creates a new assessment request handler.
func NewAssessmentRequestHandler(
	cfg *appconfig.GatekeeperConfig,
	evaluator *assessment.Evaluator,
	publisher events.QueuePublisher,
) *AssessmentRequestHandler {
	return &AssessmentRequestHandler{
		cfg:       cfg,
		evaluator: evaluator,
		publisher: publisher,
		validate:  newValidator(),
	}
}

// AssessmentRequest is the body of POST /api/v1/assessments.
type AssessmentRequest struct {
	// Units are the source units to assess (required).
	Units []events.UnitPayload `json:"units" validate:"required,min=1,max=500,dive"`

	// Intent asks the modification engine for candidates of units without one (optional).
	Intent string `json:"intent,omitempty" validate:"max=10240"`

	// RequestedBy identifies the caller (optional). The authenticated
	// subject takes precedence when authentication is enabled.
	RequestedBy string `json:"requested_by,omitempty" validate:"max=256"`

	// Async queues the request instead of scoring it inline.
	Async bool `json:"async,omitempty"`
}

// AssessmentResponse is returned to API clients.
type AssessmentResponse struct {
	Status    string                             `json:"status"`
	RequestID string                             `json:"request_id"`
	Message   string                             `json:"message"`
	Result    *events.AssessmentCompletedPayload `json:"result,omitempty"`
}

// ErrorResponse is the error response returned to API clients.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ServeHTTP handles the HTTP request for assessment creation.
func (h *AssessmentRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST method is allowed", nil)
		return
	}

	bodyReader := http.MaxBytesReader(w, r.Body, int64(h.cfg.MaxRequestSize))
	body, err := io.ReadAll(bodyReader)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", h.cfg.MaxRequestSize), nil)
			return
		}
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request",
			"Failed to read request body", nil)
		return
	}

	var request AssessmentRequest
	if unmarshalErr := json.Unmarshal(body, &request); unmarshalErr != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_json",
			"Failed to parse JSON request body",
			map[string]string{"parse_error": unmarshalErr.Error()})
		return
	}

	if validationErr := h.validateRequest(&request); validationErr != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "validation_error",
			validationErr.Error(), map[string]string{"field": validationErr.Field})
		return
	}

	if request.Intent != "" && !h.evaluator.CanModify() {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, "modification_unavailable",
			"No modification engine is configured; supply candidates instead of an intent", nil)
		return
	}

	requestedBy := request.RequestedBy
	if subject := middleware.Subject(ctx); subject != "" {
		requestedBy = subject
	}

	requestID := events.NewEventID()
	runID := events.NewRunID()
	payload := &events.AssessmentRequestedPayload{
		Units:       request.Units,
		Intent:      request.Intent,
		RequestedBy: requestedBy,
		RequestedAt: time.Now(),
	}

	if request.Async {
		h.enqueue(ctx, w, requestID, runID, payload)
		return
	}

	result, err := h.evaluator.Evaluate(ctx, requestID, runID, payload)
	if err != nil {
		log.WithError(err).Error("assessment failed",
			"request_id", requestID.String(),
			"run_id", runID.String(),
		)
		status, code := http.StatusInternalServerError, "assessment_failed"
		if errors.Is(err, context.DeadlineExceeded) {
			status, code = http.StatusGatewayTimeout, "assessment_timeout"
		}
		h.writeErrorResponse(w, status, code, "Failed to assess the submitted units", nil)
		return
	}

	h.writeSuccessResponse(w, http.StatusOK, AssessmentResponse{
		Status:    "completed",
		RequestID: requestID.String(),
		Message:   fmt.Sprintf("Assessment completed with gate %s", result.Gate),
		Result:    result,
	})
}

func (h *AssessmentRequestHandler) enqueue(
	ctx context.Context,
	w http.ResponseWriter,
	requestID events.EventID,
	runID events.RunID,
	payload *events.AssessmentRequestedPayload,
) {
	log := util.Log(ctx)

	event, err := events.NewEventBuilder(events.AssessmentRequested).
		WithEventID(requestID).
		WithRunID(runID).
		WithPayload(payload).
		Build()
	if err != nil {
		log.WithError(err).Error("failed to build assessment event", "request_id", requestID.String())
		h.writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			"Failed to prepare assessment request", nil)
		return
	}

	if publishErr := events.PublishEvent(ctx, h.publisher, h.cfg.QueueAssessmentRequestName, event); publishErr != nil {
		log.WithError(publishErr).Error("failed to publish assessment request to queue",
			"request_id", requestID.String(),
			"run_id", runID.String(),
		)
		h.writeErrorResponse(w, http.StatusInternalServerError, "queue_error",
			"Failed to queue assessment request for processing", nil)
		return
	}

	log.Info("assessment request queued",
		"request_id", requestID.String(),
		"run_id", runID.String(),
		"units", len(payload.Units),
		"requested_by", payload.RequestedBy,
	)

	h.writeSuccessResponse(w, http.StatusAccepted, AssessmentResponse{
		Status:    "accepted",
		RequestID: requestID.String(),
		Message:   "Assessment request queued for processing",
	})
}

// validateRequest applies the struct rules and the cross-unit checks.
func (h *AssessmentRequestHandler) validateRequest(req *AssessmentRequest) *ValidationError {
	if err := h.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return &ValidationError{Field: "request", Message: err.Error()}
	}

	seen := make(map[string]struct{}, len(req.Units))
	for i, u := range req.Units {
		if _, dup := seen[u.ID]; dup {
			return &ValidationError{
				Field:   fmt.Sprintf("units[%d].id", i),
				Message: fmt.Sprintf("duplicate unit id %q", u.ID),
			}
		}
		seen[u.ID] = struct{}{}
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldError converts a validator failure into a client-facing message.
func fieldError(fe validator.FieldError) *ValidationError {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "min":
		msg = "must have at least " + fe.Param() + " entries"
	case "max":
		msg = "must not exceed " + fe.Param()
	default:
		msg = "failed " + fe.Tag() + " validation"
	}
	return &ValidationError{Field: field, Message: field + " " + msg}
}

// writeSuccessResponse writes a success JSON response.
func (h *AssessmentRequestHandler) writeSuccessResponse(
	w http.ResponseWriter,
	statusCode int,
	response AssessmentResponse,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// writeErrorResponse writes an error JSON response.
func (h *AssessmentRequestHandler) writeErrorResponse(
	w http.ResponseWriter,
	statusCode int,
	errorCode, message string,
	details map[string]string,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}
