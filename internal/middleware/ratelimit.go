package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter decides whether another request for key fits the budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter counts requests per key in fixed windows shared by every instance.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit %s: %w", key, err)
		}
	}
	return n <= l.limit, nil
}

// LocalLimiter is a per-process token bucket per key.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

// NewLocalLimiter allows burst requests at once, refilled evenly over window.
func NewLocalLimiter(burst int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(window / time.Duration(max(burst, 1))),
		burst:    max(burst, 1),
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow(), nil
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *fiber.Ctx) string

// PhoneOrIP charges requests to the phone in the JSON body, falling back to the client IP.
func PhoneOrIP(c *fiber.Ctx) string {
	var body struct {
		Phone string `json:"phone"`
	}
	if err := c.BodyParser(&body); err == nil && body.Phone != "" {
		return "phone:" + body.Phone
	}
	return "ip:" + c.IP()
}

// RateLimit rejects requests over budget with 429. Limiter failures let the request through.
func RateLimit(limiter Limiter, key KeyFunc, log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		k := key(c)
		ok, err := limiter.Allow(c.UserContext(), k)
		if err != nil {
			log.Warnw("rate limiter unavailable", "key", k, "error", err)
			return c.Next()
		}
		if !ok {
			log.Infow("rate limit exceeded", "key", k, "path", c.Path())
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
