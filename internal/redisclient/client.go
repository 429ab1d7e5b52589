package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
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

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireCheckoutLock claims the per-user checkout guard. Returns false when
// another checkout for the same user is in flight, so a double-submit
// short-circuits before creating a second order or payment session.
func (c *Client) AcquireCheckoutLock(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, checkoutLockKey(userID), "1", ttl).Result()
}

// ReleaseCheckoutLock releases the checkout guard
func (c *Client) ReleaseCheckoutLock(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, checkoutLockKey(userID)).Err()
}

func checkoutLockKey(userID string) string {
	return fmt.Sprintf("checkout:lock:%s", userID)
}

// IsEventProcessed reports whether a webhook event id has already been
// applied. Checked before any work so redelivered webhooks are a no-op.
func (c *Client) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, webhookEventKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkEventProcessed records a webhook event id once its effects have been
// applied. Marking after the work means a transient failure leaves the event
// unmarked and the redelivery retries it.
func (c *Client) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, webhookEventKey(eventID), "1", ttl).Err()
}

func webhookEventKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

// SetCartCount caches the summed cart quantity for a user
func (c *Client) SetCartCount(ctx context.Context, userID string, count int, ttl time.Duration) error {
	return c.rdb.Set(ctx, cartCountKey(userID), count, ttl).Err()
}

// GetCartCount returns the cached cart count. Found is false on a cache miss.
func (c *Client) GetCartCount(ctx context.Context, userID string) (count int, found bool, err error) {
	val, err := c.rdb.Get(ctx, cartCountKey(userID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	count, err = strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("unexpected cart count value: %w", err)
	}
	return count, true, nil
}

// InvalidateCartCount drops the cached count after a cart mutation
func (c *Client) InvalidateCartCount(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, cartCountKey(userID)).Err()
}

func cartCountKey(userID string) string {
	return fmt.Sprintf("cart:count:%s", userID)
}
