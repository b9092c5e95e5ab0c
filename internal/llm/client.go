package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pitabwire/util"
	"golang.org/x/time/rate"
)

// Common errors.
var (
	ErrNoAPIKey           = errors.New("no API key configured")
	ErrRateLimited        = errors.New("rate limited")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrContextTooLong     = errors.New("context too long")
	ErrAuthentication     = errors.New("authentication failed")
	ErrServerError        = errors.New("provider server error")
	ErrInvalidResponse    = errors.New("invalid response from LLM")
	ErrAllProvidersFailed = errors.New("all providers failed")
	ErrEmptyIntent        = errors.New("modification intent is empty")
	ErrTruncatedCandidate = errors.New("candidate truncated at output token limit")
)

// Engine produces a candidate version of a unit.
type Engine interface {
	Modify(ctx context.Context, req ModifyRequest) (*ModifyResult, error)
}

// ProviderClient is the interface for a single LLM provider.
type ProviderClient interface {
	// Complete sends a modification prompt and returns the candidate it
	// produced. A reply without a complete candidate is an error.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Provider returns the provider identifier.
	Provider() Provider

	// IsAvailable returns true if the provider is configured.
	IsAvailable() bool
}

// CompletionRequest is a request to the LLM.
type CompletionRequest struct {
	Model        Model
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

func (r *CompletionRequest) maxTokens(cfg ClientConfig) int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return cfg.MaxOutputTokens
}

// CompletionResponse is a provider reply carrying the rewritten unit.
type CompletionResponse struct {
	// Model is the model the provider actually ran.
	Model      Model
	Content    string
	Candidate  string
	Usage      Usage
	StopReason string
	RequestID  string
	LatencyMS  int64
	CacheHit   bool
}

// ModificationClient implements Engine over one or more providers, falling
// back in order when a provider fails.
type ModificationClient struct {
	providers     []ProviderClient
	promptBuilder *PromptBuilder
	limiter       *rate.Limiter
	config        ClientConfig

	mu         sync.Mutex
	totalUsage Usage
}

// NewModificationClient creates a client for every provider with an API key.
func NewModificationClient(cfg ClientConfig) (*ModificationClient, error) {
	cfg = cfg.withDefaults()

	providers := make([]ProviderClient, 0, 2)
	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, NewAnthropicClient(cfg.AnthropicAPIKey, cfg))
	}
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, NewOpenAIClient(cfg.OpenAIAPIKey, cfg))
	}
	if len(providers) == 0 {
		return nil, ErrNoAPIKey
	}

	return NewModificationClientWithProviders(cfg, providers...)
}

// NewModificationClientWithProviders builds a client over explicit providers.
func NewModificationClientWithProviders(cfg ClientConfig, providers ...ProviderClient) (*ModificationClient, error) {
	if len(providers) == 0 {
		return nil, ErrNoAPIKey
	}
	cfg = cfg.withDefaults()

	pb, err := NewPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("create prompt builder: %w", err)
	}

	perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	return &ModificationClient{
		providers:     providers,
		promptBuilder: pb,
		limiter:       rate.NewLimiter(perSecond, cfg.Burst),
		config:        cfg,
	}, nil
}

// Modify implements Engine.
func (c *ModificationClient) Modify(ctx context.Context, req ModifyRequest) (*ModifyResult, error) {
	log := util.Log(ctx)

	if req.Intent == "" {
		return nil, ErrEmptyIntent
	}

	prompt, err := c.promptBuilder.Build(req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	creq := &CompletionRequest{
		Model:        c.config.DefaultModel,
		SystemPrompt: modifySystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    c.config.MaxOutputTokens,
		Temperature:  c.config.Temperature,
	}

	resp, provider, attempts, err := c.completeWithFallback(ctx, creq)
	if err != nil {
		log.WithError(err).Error("modification failed", "unit", req.UnitID)
		return nil, err
	}

	return &ModifyResult{
		Candidate:  resp.Candidate,
		Provider:   provider,
		Model:      resp.Model,
		Usage:      resp.Usage,
		LatencyMS:  resp.LatencyMS,
		StopReason: resp.StopReason,
		RequestID:  resp.RequestID,
		Attempts:   attempts,
		FinishedAt: time.Now(),
	}, nil
}

// GetUsage returns cumulative usage statistics.
func (c *ModificationClient) GetUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalUsage
}

// completeWithFallback tries each provider in order until one succeeds.
func (c *ModificationClient) completeWithFallback(
	ctx context.Context,
	req *CompletionRequest,
) (*CompletionResponse, Provider, int, error) {
	log := util.Log(ctx)
	var lastErr error
	attempts := 0

	for _, provider := range c.providers {
		if !provider.IsAvailable() {
			continue
		}

		log.Debug("trying provider", "provider", provider.Provider())

		resp, n, err := c.completeWithRetry(ctx, provider, req)
		attempts += n
		if err == nil {
			c.mu.Lock()
			c.totalUsage.Add(resp.Usage)
			c.mu.Unlock()
			return resp, provider.Provider(), attempts, nil
		}

		if ctx.Err() != nil {
			return nil, "", attempts, ctx.Err()
		}

		log.WithError(err).Warn("provider failed, trying next", "provider", provider.Provider())
		lastErr = err

		// The prompt is too long for every provider.
		if errors.Is(err, ErrContextTooLong) {
			return nil, "", attempts, err
		}
	}

	if lastErr != nil {
		return nil, "", attempts, fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
	}
	return nil, "", attempts, ErrAllProvidersFailed
}

// completeWithRetry retries a single provider request with exponential backoff.
func (c *ModificationClient) completeWithRetry(
	ctx context.Context,
	provider ProviderClient,
	req *CompletionRequest,
) (*CompletionResponse, int, error) {
	log := util.Log(ctx)
	var lastErr error

	for attempt := range c.config.MaxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, attempt, err
		}

		resp, err := provider.Complete(ctx, req)
		if err == nil {
			return resp, attempt + 1, nil
		}
		lastErr = err

		if !retryable(err) || attempt == c.config.MaxRetries-1 {
			return nil, attempt + 1, err
		}

		backoff := c.backoff(attempt)
		log.Debug("retrying after error",
			"provider", provider.Provider(),
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, attempt + 1, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, c.config.MaxRetries, lastErr
}

// backoff doubles the base delay per attempt up to the configured maximum.
func (c *ModificationClient) backoff(attempt int) time.Duration {
	delay := float64(c.config.RetryBaseDelay) * math.Pow(2, float64(attempt))
	return time.Duration(math.Min(delay, float64(c.config.RetryMaxDelay)))
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrContextTooLong),
		errors.Is(err, ErrTruncatedCandidate),
		errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrAuthentication),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// estimateCost estimates the cost of a request in USD.
func estimateCost(model Model, usage Usage) float64 {
	// Pricing per 1M tokens.
	var inputPrice, outputPrice float64

	switch model {
	case ModelClaudeOpus:
		inputPrice, outputPrice = 15.0, 75.0
	case ModelClaudeSonnet:
		inputPrice, outputPrice = 3.0, 15.0
	case ModelClaudeHaiku:
		inputPrice, outputPrice = 0.25, 1.25
	case ModelGPT4o:
		inputPrice, outputPrice = 2.5, 10.0
	case ModelGPT4oMini:
		inputPrice, outputPrice = 0.15, 0.6
	default:
		inputPrice, outputPrice = 3.0, 15.0
	}

	const tokensPerMillion = 1_000_000.0
	inputCost := float64(usage.InputTokens) / tokensPerMillion * inputPrice
	outputCost := float64(usage.OutputTokens) / tokensPerMillion * outputPrice

	return inputCost + outputCost
}
