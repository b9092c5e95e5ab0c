// Package llm produces candidate source text from an original and a
// natural-language intent using hosted language models.
package llm

import "time"

// Provider identifies an LLM provider.
type Provider string

// LLM provider constants.
const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Model identifies an LLM model.
type Model string

// Anthropic model constants.
const (
	ModelClaudeSonnet Model = "claude-sonnet-4-20250514"
	ModelClaudeOpus   Model = "claude-opus-4-20250514"
	ModelClaudeHaiku  Model = "claude-3-5-haiku-20241022"
)

// OpenAI model constants.
const (
	ModelGPT4o     Model = "gpt-4o"
	ModelGPT4oMini Model = "gpt-4o-mini"
)

// ModifyRequest asks for one unit to be rewritten.
type ModifyRequest struct {
	// UnitID names the unit, usually its path.
	UnitID string `json:"unit_id"`

	// Language is the source language of the unit.
	Language string `json:"language"`

	// Source is the original text.
	Source string `json:"source"`

	// Intent describes the change in natural language.
	Intent string `json:"intent"`
}

// ModifyResult is the candidate produced for a request.
type ModifyResult struct {
	Candidate  string    `json:"candidate"`
	Provider   Provider  `json:"provider"`
	Model      Model     `json:"model"`
	Usage      Usage     `json:"usage"`
	LatencyMS  int64     `json:"latency_ms"`
	StopReason string    `json:"stop_reason"`
	RequestID  string    `json:"request_id,omitempty"`
	Attempts   int       `json:"attempts"`
	FinishedAt time.Time `json:"finished_at"`
}

// Usage contains token usage statistics.
type Usage struct {
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CacheReadTokens  int     `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int     `json:"cache_write_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
	u.CostUSD += other.CostUSD
}

// Default configuration constants.
const (
	defaultTimeoutSeconds    = 120
	defaultMaxRetries        = 3
	defaultMaxOutputTokens   = 16384
	defaultRequestsPerMinute = 50
	defaultBurst             = 5
	defaultRetryBaseDelay    = time.Second
	defaultRetryMaxDelay     = 30 * time.Second
)

// ClientConfig contains LLM client configuration.
type ClientConfig struct {
	// Provider settings
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`

	// Endpoint overrides, empty for the public APIs.
	AnthropicBaseURL string `env:"ANTHROPIC_BASE_URL"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`

	// Defaults
	DefaultModel Model `env:"LLM_MODEL"`

	// Timeouts and retries
	TimeoutSeconds int           `env:"LLM_TIMEOUT_SECONDS"`
	MaxRetries     int           `env:"LLM_MAX_RETRIES"`
	RetryBaseDelay time.Duration `env:"LLM_RETRY_BASE_DELAY"`
	RetryMaxDelay  time.Duration `env:"LLM_RETRY_MAX_DELAY"`

	// Client-side rate limit shared by all providers.
	RequestsPerMinute int `env:"LLM_REQUESTS_PER_MINUTE"`
	Burst             int `env:"LLM_BURST"`

	// Token limits
	MaxOutputTokens int     `env:"LLM_MAX_OUTPUT_TOKENS"`
	Temperature     float64 `env:"LLM_TEMPERATURE"`
}

// DefaultClientConfig returns default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DefaultModel:      ModelClaudeSonnet,
		TimeoutSeconds:    defaultTimeoutSeconds,
		MaxRetries:        defaultMaxRetries,
		RetryBaseDelay:    defaultRetryBaseDelay,
		RetryMaxDelay:     defaultRetryMaxDelay,
		RequestsPerMinute: defaultRequestsPerMinute,
		Burst:             defaultBurst,
		MaxOutputTokens:   defaultMaxOutputTokens,
		Temperature:       0.0,
	}
}

// withDefaults fills zero fields from DefaultClientConfig.
func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.DefaultModel == "" {
		c.DefaultModel = d.DefaultModel
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = d.TimeoutSeconds
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = d.MaxOutputTokens
	}
	return c
}
