// Package cache stores rewritten article text in Redis so repeated
// requests for the same article skip the completion call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "article-voice:rewrite:"

// RewriteCache maps extracted text to its edited form
type RewriteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRewriteCache connects to addr; entries expire after ttl
func NewRewriteCache(addr string, ttl time.Duration) *RewriteCache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RewriteCache{client: rdb, ttl: ttl}
}

// Key returns the cache key for extracted text
func Key(extracted string) string {
	sum := sha256.Sum256([]byte(extracted))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached edit for extracted, if any
func (c *RewriteCache) Get(ctx context.Context, extracted string) (string, bool, error) {
	val, err := c.client.Get(ctx, Key(extracted)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failure: %w", err)
	}
	return val, true, nil
}

// Set stores edited under the key of extracted
func (c *RewriteCache) Set(ctx context.Context, extracted, edited string) error {
	if err := c.client.Set(ctx, Key(extracted), edited, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failure: %w", err)
	}
	return nil
}

// Healthy pings the server
func (c *RewriteCache) Healthy(ctx context.Context) (bool, error) {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the connection pool
func (c *RewriteCache) Close() error {
	return c.client.Close()
}
