// Package notify carries refresh signals: after a successful photo
// submission the subject's attendance history is stale and consumers
// should re-fetch it.
package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Refresh names a subject whose attendance history changed.
type Refresh struct {
	Subject string
}

// Bus is the abstraction over different backends.
type Bus interface {
	Publish(ctx context.Context, r Refresh) error
	Consume(ctx context.Context) (<-chan Refresh, error)
}

// InMemory is a minimal channel-backed bus for dev/testing.
type InMemory struct {
	ch chan Refresh
}

// NewInMemory creates a bounded in-memory bus.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Refresh, size)}
}

// Publish enqueues a refresh signal.
func (b *InMemory) Publish(ctx context.Context, r Refresh) error {
	select {
	case b.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for consumers.
func (b *InMemory) Consume(ctx context.Context) (<-chan Refresh, error) {
	out := make(chan Refresh)
	go func() {
		defer close(out)
		for {
			select {
			case r := <-b.ch:
				out <- r
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisBus implements a Redis list-backed bus so the warmer process can
// consume refreshes published by the kiosk.
type RedisBus struct {
	client *redis.Client
	key    string
}

// NewRedisBus builds a bus using LPUSH/BRPOP semantics.
func NewRedisBus(client *redis.Client, key string) *RedisBus {
	if key == "" {
		key = "kiosk:refresh"
	}
	return &RedisBus{client: client, key: key}
}

// Publish enqueues a refresh signal.
func (b *RedisBus) Publish(ctx context.Context, r Refresh) error {
	return b.client.LPush(ctx, b.key, r.Subject).Err()
}

// Consume streams refresh signals using BRPOP.
func (b *RedisBus) Consume(ctx context.Context) (<-chan Refresh, error) {
	out := make(chan Refresh)
	go func() {
		defer close(out)
		for {
			res, err := b.client.BRPop(ctx, 5*time.Second, b.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				out <- Refresh{Subject: res[1]}
			}
		}
	}()
	return out, nil
}
