// Package ratelimit coordinates a shared call budget for the market data
// provider across server instances using Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultWindowSize = time.Minute
	DefaultMaxWait    = 2 * time.Minute
	KeyPrefix         = "budget:"
)

// ErrBudgetExhausted is returned when waiting for budget would exceed MaxWait
var ErrBudgetExhausted = errors.New("provider call budget exhausted")

// consumeScript atomically checks and increments the window counter
var consumeScript = redis.NewScript(`
	local used = tonumber(redis.call('GET', KEYS[1]) or '0')
	local n = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])
	if used + n > limit then
		return {0, used}
	end
	redis.call('INCRBY', KEYS[1], n)
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return {1, used + n}
`)

// CallBudget limits provider calls per fixed window. Every instance pointing
// at the same Redis shares the count.
type CallBudget struct {
	redis      redis.Cmdable
	name       string
	limit      int
	windowSize time.Duration
	maxWait    time.Duration
	now        func() time.Time
}

// CallBudgetConfig holds configuration for the budget.
type CallBudgetConfig struct {
	// Redis is required; the budget cannot be shared without it.
	Redis redis.Cmdable

	// Name namespaces the Redis keys, usually the provider name.
	Name string

	// Limit is the number of calls allowed per window.
	Limit int

	// WindowSize defaults to one minute.
	WindowSize time.Duration

	// MaxWait bounds how long Wait blocks. Default: 2m.
	MaxWait time.Duration
}

// Usage reports the current window's consumption.
type Usage struct {
	Used        int       `json:"used"`
	Limit       int       `json:"limit"`
	WindowStart time.Time `json:"windowStart"`
}

// Validate checks if the configuration is valid.
func (c *CallBudgetConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.Name == "" {
		return errors.New("budget name is required")
	}
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", c.Limit)
	}
	if c.WindowSize < 0 || c.MaxWait < 0 {
		return errors.New("durations cannot be negative")
	}
	return nil
}

// NewCallBudget creates a budget with the given configuration.
func NewCallBudget(cfg *CallBudgetConfig) (*CallBudget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}
	maxWait := cfg.MaxWait
	if maxWait == 0 {
		maxWait = DefaultMaxWait
	}

	return &CallBudget{
		redis:      cfg.Redis,
		name:       cfg.Name,
		limit:      cfg.Limit,
		windowSize: windowSize,
		maxWait:    maxWait,
		now:        time.Now,
	}, nil
}

// windowStart aligns now to the window boundary
func (b *CallBudget) windowStart() time.Time {
	return b.now().Truncate(b.windowSize)
}

func (b *CallBudget) key(windowStart time.Time) string {
	return KeyPrefix + b.name + ":" + strconv.FormatInt(windowStart.UnixMilli(), 10)
}

// TryConsume takes n calls from the current window. When the window is
// full it returns false and the time until the next window opens.
func (b *CallBudget) TryConsume(ctx context.Context, n int) (bool, time.Duration, error) {
	if n <= 0 {
		return true, 0, nil
	}

	start := b.windowStart()
	ttl := (b.windowSize + time.Second).Milliseconds()

	result, err := consumeScript.Run(ctx, b.redis, []string{b.key(start)}, n, b.limit, ttl).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to consume budget: %w", err)
	}
	if result[0] == 1 {
		return true, 0, nil
	}

	wait := start.Add(b.windowSize).Sub(b.now())
	if wait < 0 {
		wait = 0
	}
	// Small buffer to land in the new window
	return false, wait + time.Millisecond, nil
}

// Wait blocks until n calls are available or MaxWait would be exceeded.
// A Redis failure is returned to the caller.
func (b *CallBudget) Wait(ctx context.Context, n int) error {
	deadline := b.now().Add(b.maxWait)

	for {
		allowed, wait, err := b.TryConsume(ctx, n)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if b.now().Add(wait).After(deadline) {
			return ErrBudgetExhausted
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// GetUsage returns the current window's consumption.
func (b *CallBudget) GetUsage(ctx context.Context) (*Usage, error) {
	start := b.windowStart()

	used, err := b.redis.Get(ctx, b.key(start)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read budget usage: %w", err)
	}

	return &Usage{Used: used, Limit: b.limit, WindowStart: start}, nil
}
