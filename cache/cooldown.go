package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCooldown is a process-wide cooldown map keyed by tournament id.
type MemoryCooldown struct {
	mu      sync.Mutex
	lastFix map[int]time.Time
	now     func() time.Time
	closed  bool
}

func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{lastFix: make(map[int]time.Time), now: time.Now}
}

// NewMemoryCooldownWithClock is NewMemoryCooldown with an injectable clock.
func NewMemoryCooldownWithClock(now func() time.Time) *MemoryCooldown {
	return &MemoryCooldown{lastFix: make(map[int]time.Time), now: now}
}

// Acquire records a fix for the tournament and returns true when no fix happened within the
// cooldown. Check and update happen under one lock.
func (c *MemoryCooldown) Acquire(_ context.Context, tournamentID int, cooldown time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, fmt.Errorf("cooldown store is closed")
	}

	now := c.now()
	if last, ok := c.lastFix[tournamentID]; ok && now.Sub(last) <= cooldown {
		return false, nil
	}
	c.lastFix[tournamentID] = now

	// старые отметки больше не влияют на решение
	for id, ts := range c.lastFix {
		if now.Sub(ts) > cooldown {
			delete(c.lastFix, id)
		}
	}
	return true, nil
}

func (c *MemoryCooldown) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.lastFix = make(map[int]time.Time)
	return nil
}

// RedisCooldown keeps the cooldown marker in redis so several service instances share it.
// The key expires together with the cooldown.
type RedisCooldown struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisCooldown(client *redis.Client, prefix string) *RedisCooldown {
	if prefix == "" {
		prefix = "bracket:autofix:"
	}
	return &RedisCooldown{client: client, prefix: prefix, now: time.Now}
}

func (c *RedisCooldown) key(tournamentID int) string {
	return c.prefix + strconv.Itoa(tournamentID)
}

func (c *RedisCooldown) Acquire(ctx context.Context, tournamentID int, cooldown time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(tournamentID), c.now().Unix(), cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set cooldown for tournament %d: %w", tournamentID, err)
	}
	return ok, nil
}

// Close releases the underlying client.
func (c *RedisCooldown) Close() error {
	return c.client.Close()
}
