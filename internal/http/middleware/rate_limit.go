package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig holds fixed-window rate limit settings.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
	// KeyFunc picks the counter key for a request. Defaults to client IP.
	KeyFunc func(c *fiber.Ctx) string
}

// RateLimitStore is the slice of redis the limiter needs; *redis.Client
// satisfies it.
type RateLimitStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RateLimit counts requests per key in Redis over a fixed window. Redis
// being down must never take click ingestion with it, so errors let the
// request through.
func RateLimit(rdb RateLimitStore, cfg RateLimitConfig, logger *zap.Logger) fiber.Handler {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ratelimit"
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c *fiber.Ctx) string { return c.IP() }
	}

	return func(c *fiber.Ctx) error {
		if cfg.MaxRequests <= 0 {
			return c.Next()
		}

		key := cfg.KeyPrefix + ":" + keyFunc(c)
		ctx := c.Context()

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limit unavailable", zap.Error(err))
			return c.Next()
		}
		if count == 1 {
			// A counter without a TTL would throttle the key forever once
			// the limit is hit; let the request through and start over.
			if err := rdb.Expire(ctx, key, cfg.Window).Err(); err != nil {
				logger.Warn("rate limit window not set", zap.String("key", key), zap.Error(err))
				rdb.Del(ctx, key)
				return c.Next()
			}
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, cfg.MaxRequests-int(count))))

		if count > int64(cfg.MaxRequests) {
			c.Set("Retry-After", strconv.Itoa(int(cfg.Window/time.Second)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}

		return c.Next()
	}
}
