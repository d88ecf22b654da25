package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Suppressor decides whether a notification for key may be sent now.
// Allow returns true and records the send when the key is not cooling down.
// Release forgets a recorded send whose delivery failed.
type Suppressor interface {
	Allow(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// CooldownKey scopes suppression to one recipient, category and subject.
func CooldownKey(recipientID string, category Category, subjectID string) string {
	return fmt.Sprintf("classsync:cooldown:%s:%s:%s", category, subjectID, recipientID)
}

// NoCooldown lets everything through; every tick re-emits.
type NoCooldown struct{}

func (NoCooldown) Allow(context.Context, string) (bool, error) { return true, nil }

func (NoCooldown) Release(context.Context, string) error { return nil }

// MemoryCooldown suppresses repeats for ttl within one process.
type MemoryCooldown struct {
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryCooldown(ttl time.Duration) *MemoryCooldown {
	return &MemoryCooldown{ttl: ttl, now: time.Now, seen: map[string]time.Time{}}
}

func (c *MemoryCooldown) Allow(_ context.Context, key string) (bool, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if until, ok := c.seen[key]; ok && now.Before(until) {
		return false, nil
	}
	c.seen[key] = now.Add(c.ttl)
	return true, nil
}

func (c *MemoryCooldown) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, key)
	return nil
}

// RedisCooldown shares suppression state across workers with SET NX PX.
type RedisCooldown struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCooldown(client *redis.Client, ttl time.Duration) *RedisCooldown {
	return &RedisCooldown{client: client, ttl: ttl}
}

func (c *RedisCooldown) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown %s: %w", key, err)
	}
	return ok, nil
}

func (c *RedisCooldown) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release cooldown %s: %w", key, err)
	}
	return nil
}
