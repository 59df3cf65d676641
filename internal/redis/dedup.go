package redisclient

import (
	"context"
	"fmt"
	"time"
)

// ProcessedTracker remembers webhook events that have already been reconciled
// so provider retries can be acknowledged without touching Postgres. It is a
// fast path only: markers are written after reconciliation succeeds, and the
// appointments unique index remains the source of truth if Redis loses them.
type ProcessedTracker struct {
	cache *Cache
	ttl   time.Duration
}

func NewProcessedTracker(cache *Cache, ttl time.Duration) *ProcessedTracker {
	return &ProcessedTracker{cache: cache, ttl: ttl}
}

func (t *ProcessedTracker) key(provider, eventID string) string {
	return fmt.Sprintf("processed:%s:%s", provider, eventID)
}

func (t *ProcessedTracker) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	_, err := t.cache.Get(ctx, t.key(provider, eventID))
	if err == ErrCacheMiss {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *ProcessedTracker) MarkProcessed(ctx context.Context, provider, eventID string) error {
	return t.cache.Set(ctx, t.key(provider, eventID), []byte("1"), t.ttl)
}
