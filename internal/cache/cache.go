// Package cache keeps recent availability results in Redis so repeat checks
// within the freshness window do not hit the target site at all. Every
// avoided fetch is budget the sessions keep.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/resale-sync/internal/config"
	"github.com/maltedev/resale-sync/internal/models"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(cfg config.RedisConfig) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Cache{
		client: client,
		ttl:    cfg.CacheTTL,
		logger: slog.Default().With("component", "result_cache"),
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Get returns the cached result for a product/location pair, or nil on a
// miss. Cache errors degrade to a miss: a broken cache must never fail a
// check.
func (c *Cache) Get(ctx context.Context, productID, location string) (*models.AvailabilityResult, error) {
	data, err := c.client.Get(ctx, cacheKey(productID, location)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached result: %w", err)
	}

	var result models.AvailabilityResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("discarding undecodable cache entry",
			"product_id", productID, "error", err)
		return nil, nil
	}

	return &result, nil
}

// Set stores a result for the freshness window.
func (c *Cache) Set(ctx context.Context, result models.AvailabilityResult, location string) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	key := cacheKey(result.ProductID, location)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}

	return nil
}

func cacheKey(productID, location string) string {
	return fmt.Sprintf("availability:%s:%s", productID, location)
}
