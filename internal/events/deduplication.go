package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pitabwire/util"
)

// ErrPreviouslyFailed is returned when a replayed request failed the first time.
var ErrPreviouslyFailed = errors.New("previous processing failed")

// DeduplicationStore tracks processed requests so redelivered messages are not
// assessed twice.
type DeduplicationStore interface {
	// MarkProcessed marks an event as processed.
	MarkProcessed(ctx context.Context, eventID EventID, runID RunID) error

	// IsProcessed checks if an event has been processed.
	IsProcessed(ctx context.Context, eventID EventID) (bool, error)

	// MarkProcessedWithResult marks an event as processed with its result.
	MarkProcessedWithResult(ctx context.Context, eventID EventID, runID RunID, result *ProcessingResult) error

	// GetProcessingResult returns the result of a processed event, or nil.
	GetProcessingResult(ctx context.Context, eventID EventID) (*ProcessingResult, error)

	// Cleanup removes entries older than the given age.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// ProcessingResult stores the outcome of a request for replay.
type ProcessingResult struct {
	EventID     EventID   `json:"event_id"`
	RunID       RunID     `json:"run_id"`
	ProcessedAt time.Time `json:"processed_at"`
	Success     bool      `json:"success"`

	// ErrorMessage is set if processing failed.
	ErrorMessage string `json:"error_message,omitempty"`

	// ResultData is the published result, kept for replay.
	ResultData json.RawMessage `json:"result_data,omitempty"`

	// Delivered is set once ResultData reached its destination.
	Delivered bool `json:"delivered,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

// InMemoryDeduplicationStore keeps entries in process memory.
type InMemoryDeduplicationStore struct {
	mu        sync.RWMutex
	entries   map[string]*deduplicationEntry
	retention time.Duration
	stopCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
}

type deduplicationEntry struct {
	runID       RunID
	processedAt time.Time
	result      *ProcessingResult
}

// NewInMemoryDeduplicationStore creates a store that prunes entries older than
// retention every hour. A non-positive retention keeps entries for a day.
func NewInMemoryDeduplicationStore(retention time.Duration) *InMemoryDeduplicationStore {
	if retention <= 0 {
		retention = defaultDedupTTL
	}
	store := &InMemoryDeduplicationStore{
		entries:   make(map[string]*deduplicationEntry),
		retention: retention,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	go store.periodicCleanup()
	return store
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (s *InMemoryDeduplicationStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.stoppedCh
	return nil
}

func (s *InMemoryDeduplicationStore) periodicCleanup() {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background(), s.retention)
		}
	}
}

// MarkProcessed marks an event as processed.
func (s *InMemoryDeduplicationStore) MarkProcessed(_ context.Context, eventID EventID, runID RunID) error {
	return s.put(eventID, runID, nil)
}

// IsProcessed checks if an event has been processed.
func (s *InMemoryDeduplicationStore) IsProcessed(_ context.Context, eventID EventID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.entries[eventID.String()]
	return exists, nil
}

// MarkProcessedWithResult marks an event as processed with its result.
func (s *InMemoryDeduplicationStore) MarkProcessedWithResult(
	_ context.Context,
	eventID EventID,
	runID RunID,
	result *ProcessingResult,
) error {
	return s.put(eventID, runID, result)
}

func (s *InMemoryDeduplicationStore) put(eventID EventID, runID RunID, result *ProcessingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[eventID.String()] = &deduplicationEntry{
		runID:       runID,
		processedAt: time.Now(),
		result:      result,
	}
	return nil
}

// GetProcessingResult returns the result of a processed event.
func (s *InMemoryDeduplicationStore) GetProcessingResult(_ context.Context, eventID EventID) (*ProcessingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[eventID.String()]
	if !exists {
		return nil, nil //nolint:nilnil // nil result is valid for unknown events
	}
	return entry.result, nil
}

// Cleanup removes old deduplication entries.
func (s *InMemoryDeduplicationStore) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0

	for key, entry := range s.entries {
		if entry.processedAt.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}

	return removed, nil
}

// ProcessFunc handles one request and returns the run it produced and the
// result to record for replay.
type ProcessFunc func(ctx context.Context) (RunID, json.RawMessage, error)

// IdempotentProcessor runs each event at most once per store retention.
type IdempotentProcessor struct {
	store DeduplicationStore
}

// NewIdempotentProcessor creates a processor backed by store.
func NewIdempotentProcessor(store DeduplicationStore) *IdempotentProcessor {
	return &IdempotentProcessor{store: store}
}

// Process runs fn unless eventID was already processed. For a replayed event
// it returns the recorded result, or ErrPreviouslyFailed. The boolean reports
// whether fn ran.
func (p *IdempotentProcessor) Process(ctx context.Context, eventID EventID, fn ProcessFunc) (json.RawMessage, bool, error) {
	processed, err := p.store.IsProcessed(ctx, eventID)
	if err != nil {
		return nil, false, fmt.Errorf("check processed: %w", err)
	}

	if processed {
		result, getErr := p.store.GetProcessingResult(ctx, eventID)
		if getErr != nil {
			return nil, false, fmt.Errorf("get processing result: %w", getErr)
		}
		if result != nil && !result.Success {
			return nil, false, fmt.Errorf("%w: %s", ErrPreviouslyFailed, result.ErrorMessage)
		}
		if result != nil {
			return result.ResultData, false, nil
		}
		return nil, false, nil
	}

	start := time.Now()
	runID, data, handleErr := fn(ctx)

	// An interrupted run is left unrecorded so that redelivery retries it.
	if handleErr != nil && ctx.Err() != nil {
		return nil, true, handleErr
	}

	result := &ProcessingResult{
		EventID:     eventID,
		RunID:       runID,
		ProcessedAt: time.Now(),
		Success:     handleErr == nil,
		ResultData:  data,
		DurationMS:  time.Since(start).Milliseconds(),
	}
	if handleErr != nil {
		result.ErrorMessage = handleErr.Error()
	}

	p.record(ctx, result)
	return data, true, handleErr
}

// DeliverFunc hands a recorded result to its destination.
type DeliverFunc func(ctx context.Context, data json.RawMessage) error

// ProcessAndDeliver runs fn at most once and delivers its result until a
// delivery succeeds. A result whose delivery failed stays recorded, so a
// redelivered event re-sends it without running fn again. The boolean reports
// whether fn ran.
func (p *IdempotentProcessor) ProcessAndDeliver(
	ctx context.Context,
	eventID EventID,
	fn ProcessFunc,
	deliver DeliverFunc,
) (bool, error) {
	processed, err := p.store.IsProcessed(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}

	if processed {
		result, getErr := p.store.GetProcessingResult(ctx, eventID)
		if getErr != nil {
			return false, fmt.Errorf("get processing result: %w", getErr)
		}
		switch {
		case result == nil || result.Delivered:
			return false, nil
		case !result.Success:
			return false, fmt.Errorf("%w: %s", ErrPreviouslyFailed, result.ErrorMessage)
		}
		return false, p.deliver(ctx, result, deliver)
	}

	start := time.Now()
	runID, data, handleErr := fn(ctx)
	if handleErr != nil && ctx.Err() != nil {
		return true, handleErr
	}

	result := &ProcessingResult{
		EventID:     eventID,
		RunID:       runID,
		ProcessedAt: time.Now(),
		Success:     handleErr == nil,
		ResultData:  data,
		DurationMS:  time.Since(start).Milliseconds(),
	}
	if handleErr != nil {
		result.ErrorMessage = handleErr.Error()
		p.record(ctx, result)
		return true, handleErr
	}

	p.record(ctx, result)
	return true, p.deliver(ctx, result, deliver)
}

func (p *IdempotentProcessor) deliver(ctx context.Context, result *ProcessingResult, deliver DeliverFunc) error {
	if err := deliver(ctx, result.ResultData); err != nil {
		return fmt.Errorf("deliver result: %w", err)
	}
	result.Delivered = true
	p.record(ctx, result)
	return nil
}

func (p *IdempotentProcessor) record(ctx context.Context, result *ProcessingResult) {
	if err := p.store.MarkProcessedWithResult(ctx, result.EventID, result.RunID, result); err != nil {
		util.Log(ctx).WithError(err).Warn("could not record processed event",
			"event_id", result.EventID.String(),
			"run_id", result.RunID.String(),
		)
	}
}
