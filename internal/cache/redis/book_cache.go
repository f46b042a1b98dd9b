package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkoval/depthlab/internal/domain"
)

// snapshotTTL bounds how long a stale snapshot survives after its feed stops
// publishing.
const snapshotTTL = 5 * time.Minute

// BookCache implements domain.BookCache by storing one JSON-encoded snapshot
// per feed key.
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func snapshotKey(key domain.FeedKey) string {
	return "book:snapshot:" + key.String()
}

// SetSnapshot stores the latest snapshot for a feed, replacing any previous
// one.
func (bc *BookCache) SetSnapshot(ctx context.Context, key domain.FeedKey, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot for %s: %w", key, err)
	}
	if err := bc.rdb.Set(ctx, snapshotKey(key), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot for %s: %w", key, err)
	}
	return nil
}

// GetSnapshot returns the latest stored snapshot for a feed, or
// domain.ErrNotFound when none exists.
func (bc *BookCache) GetSnapshot(ctx context.Context, key domain.FeedKey) (domain.BookSnapshot, error) {
	data, err := bc.rdb.Get(ctx, snapshotKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.BookSnapshot{}, domain.ErrNotFound
		}
		return domain.BookSnapshot{}, fmt.Errorf("redis: get snapshot for %s: %w", key, err)
	}

	var snap domain.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: unmarshal snapshot for %s: %w", key, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
