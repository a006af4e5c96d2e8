package api

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient is what the rate limiter needs from go-redis. Window reads and
// updates go through Pipeline.
type RedisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Pipeline() redis.Pipeliner
}
