// Package cache holds the read-through cache in front of the ledger store.
// Entries are JSON encoded and every mutating engine call deletes the keys it affects.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/resident-trust-ledger/internal/config"
)

const defaultTTL = 5 * time.Minute

type Cache interface {
	// Get decodes the cached value into dest and reports whether it was present
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

func ResidentBalanceKey(residentID uuid.UUID) string {
	return fmt.Sprintf("resident:%s:balance", residentID)
}

func ServiceBatchKey(batchID uuid.UUID) string {
	return fmt.Sprintf("service_batch:%s", batchID)
}

func DepositBatchKey(batchID uuid.UUID) string {
	return fmt.Sprintf("deposit_batch:%s", batchID)
}

func CashBoxBalanceKey(facilityID uuid.UUID) string {
	return fmt.Sprintf("cash_box:%s:balance", facilityID)
}

// New picks the implementation named by cfg.Driver. client may be nil unless
// the driver is redis.
func New(cfg *config.CacheConfig, client *redis.Client, logger *slog.Logger) (Cache, error) {
	switch cfg.Driver {
	case config.CacheDriverRedis:
		if client == nil {
			return nil, fmt.Errorf("cache driver %q requires a Redis client", cfg.Driver)
		}
		return NewRedisCache(client, cfg.TTL, logger), nil
	case config.CacheDriverMemory:
		return NewMemoryCache(cfg.TTL), nil
	case config.CacheDriverNone:
		return Noop{}, nil
	}
	return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
}

// ReadThrough returns the cached value for key or loads, caches and returns
// it. Cache failures are logged and never fail the read.
func ReadThrough[T any](ctx context.Context, c Cache, logger *slog.Logger, key string, load func(context.Context) (T, error)) (T, error) {
	var cached T
	hit, err := c.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn("Cache read failed, loading from store", "key", key, "error", err)
	} else if hit {
		return cached, nil
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if err := c.Set(ctx, key, value); err != nil {
		logger.Warn("Cache write failed", "key", key, "error", err)
	}
	return value, nil
}

// Invalidate deletes keys, logging instead of failing. Used after mutations
// whose store write already succeeded.
func Invalidate(ctx context.Context, c Cache, logger *slog.Logger, keys ...string) {
	if err := c.Delete(ctx, keys...); err != nil {
		logger.Error("Cache invalidation failed", "keys", keys, "error", err)
	}
}

// Noop caches nothing
type Noop struct{}

func (Noop) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (Noop) Set(context.Context, string, interface{}) error         { return nil }
func (Noop) Delete(context.Context, ...string) error                { return nil }
