// Package cache keeps Redis snapshots of fetched attendance histories.
// The HR backend stays the source of record; entries are invalidated
// whenever a mutation succeeds so views always re-fetch after writes.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"kiosk/internal/attendance"
)

const keyPrefix = "kiosk:attendance:"

// Cache wraps a redis client with the snapshot TTL.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

// New connects to redis with short timeouts.
func New(addr string, ttl time.Duration) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{Client: client, TTL: ttl}
}

// Healthy verifies redis connectivity.
func (c *Cache) Healthy(ctx context.Context) bool {
	if c == nil || c.Client == nil {
		return false
	}
	return c.Client.Ping(ctx).Err() == nil
}

// GetEvents returns the cached snapshot for a subject, if present.
func (c *Cache) GetEvents(ctx context.Context, subject string) ([]attendance.Event, bool) {
	raw, err := c.Client.Get(ctx, keyPrefix+subject).Bytes()
	if err != nil {
		return nil, false
	}
	var events []attendance.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, false
	}
	return events, true
}

// SetEvents stores a fresh snapshot for a subject.
func (c *Cache) SetEvents(ctx context.Context, subject string, events []attendance.Event) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, keyPrefix+subject, raw, c.TTL).Err()
}

// Invalidate drops a subject's snapshot so the next read re-fetches.
func (c *Cache) Invalidate(ctx context.Context, subject string) error {
	return c.Client.Del(ctx, keyPrefix+subject).Err()
}
