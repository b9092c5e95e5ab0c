package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes and TTLs.
const (
	dedupKeyPrefix  = "releasegate:dedup:"
	defaultDedupTTL = 24 * time.Hour
)

// RedisDeduplicationStore shares processed-request state between gatekeeper
// replicas. Entries expire after the configured TTL.
type RedisDeduplicationStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduplicationStore creates a new Redis-backed deduplication store.
func NewRedisDeduplicationStore(client *redis.Client, ttl time.Duration) *RedisDeduplicationStore {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &RedisDeduplicationStore{
		client: client,
		ttl:    ttl,
	}
}

// redisDeduplicationEntry is the JSON form stored under each key.
type redisDeduplicationEntry struct {
	EventID     string            `json:"event_id"`
	RunID       string            `json:"run_id"`
	ProcessedAt time.Time         `json:"processed_at"`
	Result      *ProcessingResult `json:"result,omitempty"`
}

func dedupKey(eventID EventID) string {
	return dedupKeyPrefix + eventID.String()
}

// MarkProcessed marks an event as processed.
func (s *RedisDeduplicationStore) MarkProcessed(ctx context.Context, eventID EventID, runID RunID) error {
	return s.set(ctx, eventID, runID, nil)
}

// MarkProcessedWithResult marks an event as processed with its result.
func (s *RedisDeduplicationStore) MarkProcessedWithResult(
	ctx context.Context,
	eventID EventID,
	runID RunID,
	result *ProcessingResult,
) error {
	return s.set(ctx, eventID, runID, result)
}

func (s *RedisDeduplicationStore) set(ctx context.Context, eventID EventID, runID RunID, result *ProcessingResult) error {
	data, err := json.Marshal(&redisDeduplicationEntry{
		EventID:     eventID.String(),
		RunID:       runID.String(),
		ProcessedAt: time.Now(),
		Result:      result,
	})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if setErr := s.client.Set(ctx, dedupKey(eventID), data, s.ttl).Err(); setErr != nil {
		return fmt.Errorf("set key: %w", setErr)
	}
	return nil
}

// IsProcessed checks if an event has been processed.
func (s *RedisDeduplicationStore) IsProcessed(ctx context.Context, eventID EventID) (bool, error) {
	exists, err := s.client.Exists(ctx, dedupKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}
	return exists > 0, nil
}

// GetProcessingResult returns the result of a processed event.
func (s *RedisDeduplicationStore) GetProcessingResult(ctx context.Context, eventID EventID) (*ProcessingResult, error) {
	data, err := s.client.Get(ctx, dedupKey(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint:nilnil // nil result is valid for non-existent events
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}

	var entry redisDeduplicationEntry
	if unmarshalErr := json.Unmarshal(data, &entry); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", unmarshalErr)
	}

	return entry.Result, nil
}

// Cleanup is a no-op: Redis expires keys on its own.
func (s *RedisDeduplicationStore) Cleanup(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}
