package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pitabwire/util"
	"github.com/redis/go-redis/v9"
)

// BackendType represents the type of backend storage.
type BackendType string

// Backend type constants.
const (
	BackendMemory BackendType = "memory"
	BackendRedis  BackendType = "redis"
)

// ErrUnknownBackend is returned for an unsupported backend type.
var ErrUnknownBackend = errors.New("unknown backend")

// BackendConfig contains configuration for backend storage.
type BackendConfig struct {
	// DeduplicationBackend is the backend for deduplication storage.
	DeduplicationBackend BackendType

	// RedisURL is the Redis connection string.
	RedisURL string

	// DeduplicationTTL is the TTL for deduplication entries.
	DeduplicationTTL time.Duration
}

// DefaultBackendConfig returns the default configuration with in-memory backends.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		DeduplicationBackend: BackendMemory,
		DeduplicationTTL:     defaultDedupTTL,
	}
}

// Backends holds the backend implementations.
type Backends struct {
	Deduplication DeduplicationStore

	redisClient *redis.Client
}

// Close closes any resources held by the backends.
func (b *Backends) Close() error {
	var errs []error
	if closer, ok := b.Deduplication.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if b.redisClient != nil {
		errs = append(errs, b.redisClient.Close())
	}
	return errors.Join(errs...)
}

// NewBackends creates backend implementations based on the configuration.
func NewBackends(ctx context.Context, cfg BackendConfig) (*Backends, error) {
	log := util.Log(ctx)
	backends := &Backends{}

	switch cfg.DeduplicationBackend {
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("redis URL required when using redis backend")
		}

		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}

		client := redis.NewClient(opts)
		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", pingErr)
		}

		backends.redisClient = client
		backends.Deduplication = NewRedisDeduplicationStore(client, cfg.DeduplicationTTL)
		log.Info("using Redis deduplication store", "url", sanitizeRedisURL(cfg.RedisURL))
	case BackendMemory, "":
		backends.Deduplication = NewInMemoryDeduplicationStore(cfg.DeduplicationTTL)
		log.Info("using in-memory deduplication store")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.DeduplicationBackend)
	}

	return backends, nil
}

// NewBackendsWithFallback creates backends with fallback to in-memory if Redis fails.
func NewBackendsWithFallback(ctx context.Context, cfg BackendConfig) (*Backends, error) {
	backends, err := NewBackends(ctx, cfg)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("falling back to in-memory backends")

		cfg.DeduplicationBackend = BackendMemory
		return NewBackends(ctx, cfg)
	}

	return backends, nil
}

// sanitizeRedisURL removes password from Redis URL for logging.
func sanitizeRedisURL(url string) string {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return "[invalid]"
	}

	if opts.Username != "" {
		return fmt.Sprintf("redis://%s@%s/%d", opts.Username, opts.Addr, opts.DB)
	}
	return fmt.Sprintf("redis://%s/%d", opts.Addr, opts.DB)
}

// HealthCheck performs a health check on all backends.
func (b *Backends) HealthCheck(ctx context.Context) error {
	if b.redisClient != nil {
		if err := b.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis health check: %w", err)
		}
	}
	return nil
}
