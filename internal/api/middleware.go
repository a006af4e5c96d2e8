package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/behzadon/podium/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	DefaultRateLimit     = 120
	DefaultRateWindow    = 60
	DefaultBurstLimit    = 10
	DefaultCleanupWindow = 3600
)

// RateLimiter keeps per-user counters in Redis. Keys include the route so a
// burst of share attempts does not block reading the current view.
type RateLimiter struct {
	redis      RedisClient
	logger     *zap.Logger
	rateLimit  int
	burstLimit int64
}

func NewRateLimiter(redis RedisClient, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		redis:      redis,
		logger:     logger,
		rateLimit:  DefaultRateLimit,
		burstLimit: DefaultBurstLimit,
	}
}

func (rl *RateLimiter) userID(c *gin.Context) (string, bool) {
	userID := c.GetString(auth.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  "error",
			"message": "User ID is required",
		})
		c.Abort()
		return "", false
	}
	return userID, true
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := rl.userID(c)
		if !ok {
			return
		}

		route := c.FullPath()
		key := "rate_limit:" + userID + ":" + route

		ctx := c.Request.Context()
		pipe := rl.redis.Pipeline()
		now := time.Now().Unix()
		windowKey := key + ":window"
		countKey := key + ":count"

		getCount := pipe.Get(ctx, countKey)
		getWindow := pipe.Get(ctx, windowKey)

		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			rl.logger.Error("failed to get rate limit info",
				zap.Error(err),
				zap.String("user_id", userID),
				zap.String("path", route),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "Rate limit check failed",
			})
			c.Abort()
			return
		}

		count := 0
		window := now
		if countStr, err := getCount.Result(); err == nil {
			if count, err = strconv.Atoi(countStr); err != nil {
				rl.logger.Error("failed to parse count",
					zap.Error(err),
					zap.String("count", countStr),
				)
			}
		}
		if windowStr, err := getWindow.Result(); err == nil {
			if window, err = strconv.ParseInt(windowStr, 10, 64); err != nil {
				rl.logger.Error("failed to parse window",
					zap.Error(err),
					zap.String("window", windowStr),
				)
			}
		}

		if now-window >= DefaultRateWindow {
			count = 0
			window = now
		}

		if count >= rl.rateLimit {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		pipe = rl.redis.Pipeline()
		pipe.Incr(ctx, countKey)
		pipe.Set(ctx, windowKey, window, DefaultCleanupWindow*time.Second)
		if _, err := pipe.Exec(ctx); err != nil {
			rl.logger.Error("failed to update rate limit",
				zap.Error(err),
				zap.String("user_id", userID),
				zap.String("path", route),
			)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.rateLimit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(rl.rateLimit-count-1))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(window+DefaultRateWindow, 10))

		c.Next()
	}
}

// BurstLimit caps requests per user and route within one second. It guards
// the mutations that reach the backend.
func (rl *RateLimiter) BurstLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := rl.userID(c)
		if !ok {
			return
		}

		route := c.FullPath()
		key := "burst_limit:" + userID + ":" + route
		ctx := c.Request.Context()
		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.Error("failed to increment burst limit",
				zap.Error(err),
				zap.String("user_id", userID),
				zap.String("path", route),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "Burst limit check failed",
			})
			c.Abort()
			return
		}

		if count == 1 {
			if err := rl.redis.Expire(ctx, key, time.Second).Err(); err != nil {
				rl.logger.Error("failed to set burst limit expiry",
					zap.Error(err),
					zap.String("user_id", userID),
					zap.String("path", route),
				)
			}
		}

		if count > rl.burstLimit {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "Burst limit exceeded",
			})
			c.Abort()
			return
		}

		c.Header("X-BurstLimit-Limit", strconv.FormatInt(rl.burstLimit, 10))
		c.Header("X-BurstLimit-Remaining", strconv.FormatInt(rl.burstLimit-count, 10))

		c.Next()
	}
}
