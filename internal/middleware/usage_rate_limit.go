package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const usageRateWindow = time.Minute

// UsageRateLimit caps usage submissions per customer per minute using a
// fixed Redis window. Requests without a customerId fall back to the client
// IP. A nil cache or a Redis error lets the request through.
func UsageRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || maxPerMin <= 0 {
			return c.Next()
		}
		var req struct {
			CustomerID string `json:"customerId"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.CustomerID)
		if subject == "" {
			subject = "ip:" + c.IP()
		}

		window := time.Now().UTC().Truncate(usageRateWindow).Unix()
		key := fmt.Sprintf("rl:usage:%s:%d", subject, window)

		var incr *redis.IntCmd
		_, err := cache.TxPipelined(c.UserContext(), func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(c.UserContext(), key)
			pipe.Expire(c.UserContext(), key, usageRateWindow+time.Second)
			return nil
		})
		if err != nil {
			logger.Warn("usage rate limit unavailable", slog.String("subject", subject), slog.Any("error", err))
			return c.Next()
		}

		count := incr.Val()
		remaining := int64(maxPerMin) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(maxPerMin))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "usage rate limit exceeded, try again later")
		}
		return c.Next()
	}
}
