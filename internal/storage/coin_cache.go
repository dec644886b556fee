package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/folio-tracker/internal/models"
)

// Cache key prefixes
const (
	coinKeyPrefix = "coin:"
	coinListKey   = "coins:all"
)

// CoinCache is a read-through Redis cache in front of coin metadata.
// Misses are never errors; callers fall back to Postgres.
type CoinCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCoinCache creates a new coin cache
func NewCoinCache(redis *RedisCache, ttl time.Duration) *CoinCache {
	return &CoinCache{
		redis: redis,
		ttl:   ttl,
	}
}

// CoinKey generates the cache key of a single coin
// Format: coin:<TICKER>
func CoinKey(symbol string) string {
	return coinKeyPrefix + models.NormalizeTicker(symbol)
}

// Get returns the cached coin, or nil on a miss
func (c *CoinCache) Get(ctx context.Context, symbol string) (*models.CoinMetadata, error) {
	data, err := c.redis.Get(ctx, CoinKey(symbol))
	if err != nil {
		if IsMiss(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get coin from cache: %w", err)
	}

	var coin models.CoinMetadata
	if err := json.Unmarshal([]byte(data), &coin); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached coin: %w", err)
	}
	return &coin, nil
}

// GetAll returns the cached coin list, or nil on a miss
func (c *CoinCache) GetAll(ctx context.Context) ([]*models.CoinMetadata, error) {
	data, err := c.redis.Get(ctx, coinListKey)
	if err != nil {
		if IsMiss(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get coin list from cache: %w", err)
	}

	var coins []*models.CoinMetadata
	if err := json.Unmarshal([]byte(data), &coins); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached coin list: %w", err)
	}
	return coins, nil
}

// Put caches a single coin
func (c *CoinCache) Put(ctx context.Context, coin *models.CoinMetadata) error {
	data, err := json.Marshal(coin)
	if err != nil {
		return fmt.Errorf("failed to marshal coin: %w", err)
	}
	return c.redis.Set(ctx, CoinKey(coin.Symbol), data, c.ttl)
}

// PutAll replaces the cached list and every per-coin entry
func (c *CoinCache) PutAll(ctx context.Context, coins []*models.CoinMetadata) error {
	values := make(map[string]interface{}, len(coins)+1)

	list, err := json.Marshal(coins)
	if err != nil {
		return fmt.Errorf("failed to marshal coin list: %w", err)
	}
	values[coinListKey] = list

	for _, coin := range coins {
		data, err := json.Marshal(coin)
		if err != nil {
			return fmt.Errorf("failed to marshal coin %s: %w", coin.Symbol, err)
		}
		values[CoinKey(coin.Symbol)] = data
	}

	if err := c.redis.SetMany(ctx, values, c.ttl); err != nil {
		return fmt.Errorf("failed to write coin cache: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached coin entry
func (c *CoinCache) InvalidateAll(ctx context.Context) error {
	keys, err := c.redis.Keys(ctx, coinKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to find cached coins: %w", err)
	}
	keys = append(keys, coinListKey)
	return c.redis.Del(ctx, keys...)
}

// TTL returns the configured entry lifetime
func (c *CoinCache) TTL() time.Duration {
	return c.ttl
}

