package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// ChallengeRateLimit caps ceremony-options requests per username (or IP when
// no username is present) using Redis if available. Every options call mints
// a fresh challenge, so an unauthenticated client could otherwise churn
// server-side session state at will.
func ChallengeRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			Username string `json:"username"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.Username)
		if subject == "" {
			subject = c.IP()
		}
		key := "rl:challenge:" + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many challenge requests, try again later")
		}
		return c.Next()
	}
}
