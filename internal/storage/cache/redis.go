package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/behzadon/podium/internal/domain"
	"github.com/behzadon/podium/internal/metrics"
	"github.com/go-redis/redis/v8"
)

const (
	defaultUserTTL = 5 * time.Minute
	generationTTL  = 24 * time.Hour
)

// setIfCurrent stores the snapshot only while the generation it was loaded
// under is still current. A missing generation counts as zero.
var setIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisCache holds the one shared User snapshot per user. Entries are replaced
// or deleted, never patched.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultUserTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func userKey(userID string) string {
	return fmt.Sprintf("user:snapshot:%s", userID)
}

func generationKey(userID string) string {
	return fmt.Sprintf("user:generation:%s", userID)
}

func (c *RedisCache) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	data, err := c.client.Get(ctx, userKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheOperation("get_user", false)
			return nil, nil
		}
		return nil, fmt.Errorf("get user from cache: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}

	metrics.RecordCacheOperation("get_user", true)
	return &user, nil
}

func (c *RedisCache) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get user generation: %w", err)
	}
	return gen, nil
}

// SetUser stores user if no invalidation happened since generation was read.
// It returns domain.ErrStaleUser otherwise.
func (c *RedisCache) SetUser(ctx context.Context, user *domain.User, generation int64) error {
	if user == nil || user.ID == "" {
		return errors.New("set user in cache: missing user id")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	keys := []string{userKey(user.ID), generationKey(user.ID)}
	stored, err := setIfCurrent.Run(ctx, c.client, keys,
		strconv.FormatInt(generation, 10), data, c.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("set user in cache: %w", err)
	}
	if stored == 0 {
		metrics.RecordCacheOperation("set_user", false)
		return domain.ErrStaleUser
	}

	metrics.RecordCacheOperation("set_user", true)
	return nil
}

// InvalidateUser bumps the generation before dropping the snapshot, so loads
// already in flight can no longer store what they fetched.
func (c *RedisCache) InvalidateUser(ctx context.Context, userID string) error {
	if err := c.client.Incr(ctx, generationKey(userID)).Err(); err != nil {
		return fmt.Errorf("bump user generation: %w", err)
	}
	if err := c.client.Expire(ctx, generationKey(userID), generationTTL).Err(); err != nil {
		return fmt.Errorf("expire user generation: %w", err)
	}
	if err := c.client.Del(ctx, userKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate user in cache: %w", err)
	}
	return nil
}
