package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
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

func stockKey(itemID string) string {
	return fmt.Sprintf("stock:%s", itemID)
}

// ReserveStock atomically checks and decrements available stock via Lua.
// ok reports whether the reservation applied. available is the quantity the
// script observed: on failure it is what remains for sale, and -1 means the
// item is not tracked in Redis and the caller should fall back to the store.
func (c *Client) ReserveStock(ctx context.Context, itemID string, quantity int) (ok bool, available int, err error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{stockKey(itemID)}, quantity).Result()
	if err != nil {
		return false, 0, fmt.Errorf("reserve stock script failed: %w", err)
	}

	values, isSlice := result.([]interface{})
	if !isSlice || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected script result: %v", result)
	}

	applied, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	return applied == 1, int(remaining), nil
}

// ReleaseStock atomically adds reserved stock back (compensation)
func (c *Client) ReleaseStock(ctx context.Context, itemID string, quantity int) error {
	if _, err := c.releaseScript.Run(ctx, c.rdb, []string{stockKey(itemID)}, quantity).Result(); err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// InitStock seeds the available count for an item
func (c *Client) InitStock(ctx context.Context, itemID string, available int) error {
	return c.rdb.Set(ctx, stockKey(itemID), available, 0).Err()
}

// GetStock retrieves the available count for an item
func (c *Client) GetStock(ctx context.Context, itemID string) (int, error) {
	available, err := c.rdb.Get(ctx, stockKey(itemID)).Int()
	if err == redis.Nil {
		return 0, fmt.Errorf("stock not tracked for item %s", itemID)
	}
	if err != nil {
		return 0, err
	}
	return available, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
