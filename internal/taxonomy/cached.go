package taxonomy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/careslot/doctor-booking/internal/redis"
)

// CachedStore is a read-through cache over a Store. Entries expire after the
// configured TTL and writes invalidate their list immediately, so taxonomy
// admin changes become visible without waiting out the TTL. Cache failures
// degrade to the underlying store, never to an error.
type CachedStore struct {
	store Store
	cache *redisclient.Cache
	ttl   time.Duration
}

func NewCachedStore(store Store, cache *redisclient.Cache, ttl time.Duration) *CachedStore {
	return &CachedStore{
		store: store,
		cache: cache,
		ttl:   ttl,
	}
}

func cacheKey(kind Kind) string {
	return fmt.Sprintf("taxonomy:%s", kind)
}

func (c *CachedStore) List(ctx context.Context, kind Kind) ([]Item, error) {
	key := cacheKey(kind)

	if data, err := c.cache.Get(ctx, key); err == nil {
		var items []Item
		if jsonErr := json.Unmarshal(data, &items); jsonErr == nil {
			return items, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		_ = c.cache.Delete(ctx, key)
	} else if !errors.Is(err, redisclient.ErrCacheMiss) {
		log.Warn().Err(err).Str("key", key).Msg("taxonomy cache read failed")
	}

	items, err := c.store.List(ctx, kind)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(items); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("taxonomy cache write failed")
		}
	}

	return items, nil
}

func (c *CachedStore) Create(ctx context.Context, kind Kind, name string) (*Item, error) {
	item, err := c.store.Create(ctx, kind, name)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Delete(ctx, cacheKey(kind)); err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("taxonomy cache invalidation failed")
	}

	return item, nil
}
