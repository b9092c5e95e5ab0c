package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// statusOverloaded is Anthropic's non-standard "overloaded" status.
const statusOverloaded = 529

// endpoint posts JSON to one provider API.
type endpoint struct {
	url        string
	headers    map[string]string
	httpClient *http.Client
}

func newEndpoint(defaultURL, baseURL, path string, timeoutSeconds int, headers map[string]string) endpoint {
	url := defaultURL
	if baseURL != "" {
		url = strings.TrimRight(baseURL, "/") + path
	}
	return endpoint{
		url:        url,
		headers:    headers,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
	}
}

// post sends payload and decodes a 200 response into out. Other statuses are
// handed to decodeErr, which parses the provider's error body into an apiError.
func (e endpoint) post(ctx context.Context, payload, out any, decodeErr func([]byte) apiError) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		apiErr := decodeErr(respBody)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr.classify(httpResp.StatusCode)
	}

	if unmarshalErr := json.Unmarshal(respBody, out); unmarshalErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, unmarshalErr)
	}
	return nil
}

// apiError is the provider-neutral part of an error body.
type apiError struct {
	Type    string
	Code    string
	Message string
}

// classify maps an error status onto the package sentinels.
func (e apiError) classify(status int) error {
	switch status {
	case http.StatusTooManyRequests:
		if e.Code == "insufficient_quota" {
			return fmt.Errorf("%w: %s", ErrQuotaExceeded, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrRateLimited, e.Message)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, e.Message)
	case http.StatusBadRequest:
		if e.Code == "context_length_exceeded" ||
			(e.Type == "invalid_request_error" && containsContextLengthError(e.Message)) {
			return fmt.Errorf("%w: %s", ErrContextTooLong, e.Message)
		}
		return fmt.Errorf("bad request: %s", e.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthentication, e.Message)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, statusOverloaded:
		return fmt.Errorf("%w: %s", ErrServerError, e.Message)
	default:
		return fmt.Errorf("API error (status %d): %s", status, e.Message)
	}
}

// containsContextLengthError checks if an error message indicates context length issues.
func containsContextLengthError(msg string) bool {
	msg = strings.ToLower(msg)
	for _, kw := range []string{"context_length", "too many tokens", "maximum context length", "token limit", "prompt is too long"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// candidateResponse turns provider output into a CompletionResponse holding
// the rewritten unit. Output cut off by the token limit is rejected since the
// unit would be incomplete.
func candidateResponse(content string, truncated bool, resp CompletionResponse) (*CompletionResponse, error) {
	if truncated {
		return nil, fmt.Errorf("%w: stop reason %q", ErrTruncatedCandidate, resp.StopReason)
	}
	candidate, err := extractCandidate(content)
	if err != nil {
		return nil, err
	}
	resp.Content = content
	resp.Candidate = candidate
	return &resp, nil
}
