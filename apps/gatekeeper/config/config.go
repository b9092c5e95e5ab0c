package config

import (
	"time"

	"github.com/pitabwire/frame/config"

	"github.com/antinvestor/releasegate/internal/events"
	"github.com/antinvestor/releasegate/internal/llm"
)

// GatekeeperConfig defines configuration for the gatekeeper service.
// The gatekeeper scores release candidates over HTTP and from the
// assessment request queue.
type GatekeeperConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// Assessment Request Queue (incoming, also fed by async HTTP requests)
	// ==========================================================================

	// QueueAssessmentRequestName is the name of the assessment request queue.
	QueueAssessmentRequestName string `envDefault:"assessment.requests" env:"QUEUE_ASSESSMENT_REQUEST_NAME"`

	// QueueAssessmentRequestURI is the URI of the assessment request queue.
	QueueAssessmentRequestURI string `envDefault:"mem://assessment.requests" env:"QUEUE_ASSESSMENT_REQUEST_URI"`

	// ==========================================================================
	// Assessment Result Queue (outgoing)
	// ==========================================================================

	// QueueAssessmentResultName is the name of the assessment result queue.
	QueueAssessmentResultName string `envDefault:"assessment.results" env:"QUEUE_ASSESSMENT_RESULT_NAME"`

	// QueueAssessmentResultURI is the URI of the assessment result queue.
	QueueAssessmentResultURI string `envDefault:"mem://assessment.results" env:"QUEUE_ASSESSMENT_RESULT_URI"`

	// ==========================================================================
	// Authentication
	// ==========================================================================

	// RequireAuthentication demands a bearer token on the assessment API.
	RequireAuthentication bool `envDefault:"false" env:"REQUIRE_AUTHENTICATION"`

	// ==========================================================================
	// Rate Limiting
	// ==========================================================================

	// RateLimitRequestsPerMinute limits requests per minute per client.
	RateLimitRequestsPerMinute int `envDefault:"60" env:"RATE_LIMIT_REQUESTS_PER_MINUTE"`

	// RateLimitBurstSize is the burst size for rate limiting.
	RateLimitBurstSize int `envDefault:"10" env:"RATE_LIMIT_BURST_SIZE"`

	// ==========================================================================
	// Assessment
	// ==========================================================================

	// MaxRequestSize is the maximum size of an assessment request in bytes.
	MaxRequestSize int `envDefault:"4194304" env:"MAX_REQUEST_SIZE"` // 4MB

	// AssessmentTimeoutSeconds bounds a single assessment run.
	AssessmentTimeoutSeconds int `envDefault:"120" env:"ASSESSMENT_TIMEOUT_SECONDS"`

	// PolicyPath is an optional YAML release policy file.
	PolicyPath string `env:"POLICY_PATH"`

	// ==========================================================================
	// Deduplication
	// ==========================================================================

	// DeduplicationBackend is "memory" or "redis".
	DeduplicationBackend string `envDefault:"memory" env:"DEDUPLICATION_BACKEND"`

	// RedisURL is required for the redis backend.
	RedisURL string `env:"REDIS_URL"`

	// DeduplicationTTL is how long processed requests are remembered.
	DeduplicationTTL time.Duration `envDefault:"24h" env:"DEDUPLICATION_TTL"`

	// ==========================================================================
	// Modification Engine
	// ==========================================================================

	// LLM configures candidate generation for requests carrying an intent.
	LLM llm.ClientConfig
}

// BackendConfig returns the deduplication backend configuration.
func (c *GatekeeperConfig) BackendConfig() events.BackendConfig {
	return events.BackendConfig{
		DeduplicationBackend: events.BackendType(c.DeduplicationBackend),
		RedisURL:             c.RedisURL,
		DeduplicationTTL:     c.DeduplicationTTL,
	}
}

// AssessmentTimeout returns the per-run time limit.
func (c *GatekeeperConfig) AssessmentTimeout() time.Duration {
	return time.Duration(c.AssessmentTimeoutSeconds) * time.Second
}

// ModificationEnabled reports whether any LLM provider is configured.
func (c *GatekeeperConfig) ModificationEnabled() bool {
	return c.LLM.AnthropicAPIKey != "" || c.LLM.OpenAIAPIKey != ""
}
