package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
)

//go:embed scripts/set_stock.lua
var setStockScript string

type Client struct {
	rdb            *redis.Client
	setStockScript *redis.Script
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
		return nil, errors.Wrap(err, "redis ping")
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing connection.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:            rdb,
		setStockScript: redis.NewScript(setStockScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func inventoryKey(productID int64) string {
	return fmt.Sprintf("inventory:%d", productID)
}

func idempotencyKey(userID int64, key string) string {
	return fmt.Sprintf("idempotency:%d:%s", userID, key)
}

// SetStock mirrors a product's stock. The write is skipped, and false
// returned, when the mirror already holds the same or a newer version.
func (c *Client) SetStock(ctx context.Context, productID int64, available int, version int64) (bool, error) {
	result, err := c.setStockScript.Run(ctx, c.rdb, []string{inventoryKey(productID)}, available, version).Result()
	if err != nil {
		return false, errors.Wrap(err, "set stock script")
	}

	written, ok := result.(int64)
	if !ok {
		return false, errors.Errorf("unexpected script result type %T", result)
	}
	return written == 1, nil
}

// GetStock returns the mirrored stock of a product; ok is false when the
// product has not been mirrored yet.
func (c *Client) GetStock(ctx context.Context, productID int64) (available int, ok bool, err error) {
	raw, err := c.rdb.HGet(ctx, inventoryKey(productID), "available").Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "get stock")
	}

	available, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, errors.Wrapf(err, "parse stock for product %d", productID)
	}
	return available, true, nil
}

// DeleteStock removes a product from the mirror.
func (c *Client) DeleteStock(ctx context.Context, productID int64) error {
	if err := c.rdb.Del(ctx, inventoryKey(productID)).Err(); err != nil {
		return errors.Wrap(err, "delete stock")
	}
	return nil
}

// SetIdempotentOrder records the order a user's idempotency key produced.
func (c *Client) SetIdempotentOrder(ctx context.Context, userID int64, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(userID, key), orderID, ttl).Err()
}

// GetIdempotentOrder returns the order recorded for a user's idempotency key.
func (c *Client) GetIdempotentOrder(ctx context.Context, userID int64, key string) (int64, bool, error) {
	orderID, err := c.rdb.Get(ctx, idempotencyKey(userID, key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "get idempotency key")
	}
	return orderID, true, nil
}
