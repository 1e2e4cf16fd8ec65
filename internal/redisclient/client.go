package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

//go:embed scripts/adjust_stock.lua
var adjustStockScript string

const stockKeyPrefix = "stock:"

type Client struct {
	rdb          *redis.Client
	adjustScript *redis.Script
}

// NewClient creates a new Redis client with the stock script loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:          rdb,
		adjustScript: redis.NewScript(adjustStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetStock caches the committed stock level for an inventory item
func (c *Client) SetStock(ctx context.Context, inventoryID string, stock decimal.Decimal) error {
	return c.rdb.Set(ctx, stockKeyPrefix+inventoryID, stock.String(), 0).Err()
}

// GetStock reads a cached stock level; the second return is false on a miss
func (c *Client) GetStock(ctx context.Context, inventoryID string) (decimal.Decimal, bool, error) {
	val, err := c.rdb.Get(ctx, stockKeyPrefix+inventoryID).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	stock, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached stock value %q: %w", val, err)
	}
	return stock, true, nil
}

// AdjustStock atomically applies a delta to a cached stock level using the
// embedded Lua script; a missing key is left untouched
func (c *Client) AdjustStock(ctx context.Context, inventoryID string, delta decimal.Decimal) error {
	key := stockKeyPrefix + inventoryID

	_, err := c.adjustScript.Run(ctx, c.rdb, []string{key}, delta.String()).Result()
	if err != nil {
		return fmt.Errorf("adjust stock script failed: %w", err)
	}
	return nil
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// AcquireLock acquires a distributed lock (used to serialize printer access)
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
