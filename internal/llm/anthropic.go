package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
	anthropicMaxTokens  = "max_tokens"
)

// AnthropicClient rewrites units through the Anthropic Messages API.
type AnthropicClient struct {
	apiKey   string
	endpoint endpoint
	config   ClientConfig
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string, cfg ClientConfig) *AnthropicClient {
	return &AnthropicClient{
		apiKey: apiKey,
		endpoint: newEndpoint(anthropicAPIURL, cfg.AnthropicBaseURL, "/v1/messages", cfg.TimeoutSeconds,
			map[string]string{
				"X-Api-Key":         apiKey,
				"Anthropic-Version": anthropicAPIVersion,
			}),
		config: cfg,
	}
}

// Provider implements ProviderClient.
func (c *AnthropicClient) Provider() Provider {
	return ProviderAnthropic
}

// IsAvailable implements ProviderClient.
func (c *AnthropicClient) IsAvailable() bool {
	return c.apiKey != ""
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// anthropicModel keeps Claude models and replaces anything else with Sonnet.
func anthropicModel(model Model) Model {
	if strings.HasPrefix(string(model), "claude") {
		return model
	}
	return ModelClaudeSonnet
}

// Complete sends the modification prompt and returns the rewritten unit.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := anthropicModel(req.Model)

	var resp anthropicResponse
	err := c.endpoint.post(ctx, anthropicRequest{
		Model:       string(model),
		MaxTokens:   req.maxTokens(c.config),
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
	}, &resp, decodeAnthropicError)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, part := range resp.Content {
		if part.Type == "text" {
			text.WriteString(part.Text)
		}
	}

	usage := Usage{
		InputTokens:      resp.Usage.InputTokens,
		OutputTokens:     resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		CacheReadTokens:  resp.Usage.CacheReadInputTokens,
		CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
	}
	usage.CostUSD = estimateCost(model, usage)

	return candidateResponse(text.String(), resp.StopReason == anthropicMaxTokens, CompletionResponse{
		Model:      model,
		Usage:      usage,
		StopReason: resp.StopReason,
		RequestID:  resp.ID,
		LatencyMS:  time.Since(start).Milliseconds(),
		CacheHit:   resp.Usage.CacheReadInputTokens > 0,
	})
}

func decodeAnthropicError(body []byte) apiError {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &errResp)
	return apiError{Type: errResp.Error.Type, Message: errResp.Error.Message}
}
