package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const openaiAPIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient rewrites units through the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey   string
	endpoint endpoint
	config   ClientConfig
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string, cfg ClientConfig) *OpenAIClient {
	return &OpenAIClient{
		apiKey: apiKey,
		endpoint: newEndpoint(openaiAPIURL, cfg.OpenAIBaseURL, "/v1/chat/completions", cfg.TimeoutSeconds,
			map[string]string{"Authorization": "Bearer " + apiKey}),
		config: cfg,
	}
}

// Provider implements ProviderClient.
func (c *OpenAIClient) Provider() Provider {
	return ProviderOpenAI
}

// IsAvailable implements ProviderClient.
func (c *OpenAIClient) IsAvailable() bool {
	return c.apiKey != ""
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

const openaiFinishLength = "length"

// Complete sends the modification prompt and returns the rewritten unit.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := mapModelToOpenAI(req.Model)

	messages := make([]openaiMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.UserPrompt})

	var resp openaiResponse
	err := c.endpoint.post(ctx, openaiRequest{
		Model:       string(model),
		Messages:    messages,
		MaxTokens:   req.maxTokens(c.config),
		Temperature: req.Temperature,
	}, &resp, decodeOpenAIError)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	choice := resp.Choices[0]

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	usage.CostUSD = estimateCost(model, usage)

	return candidateResponse(choice.Message.Content, choice.FinishReason == openaiFinishLength, CompletionResponse{
		Model:      model,
		Usage:      usage,
		StopReason: choice.FinishReason,
		RequestID:  resp.ID,
		LatencyMS:  time.Since(start).Milliseconds(),
	})
}

func decodeOpenAIError(body []byte) apiError {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &errResp)
	return apiError{Type: errResp.Error.Type, Code: errResp.Error.Code, Message: errResp.Error.Message}
}

// mapModelToOpenAI picks the OpenAI model closest in tier to the configured one.
func mapModelToOpenAI(model Model) Model {
	switch model {
	case ModelGPT4o, ModelGPT4oMini:
		return model
	case ModelClaudeHaiku:
		return ModelGPT4oMini
	default:
		return ModelGPT4o
	}
}
