package events

import (
	"context"
	"fmt"
	"time"

	"github.com/behzadon/podium/internal/domain"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const DefaultRedisChannel = "podium:events"

type pubsubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher fans events out over Redis pub/sub. Delivery is best effort:
// subscribers that are not connected miss the event.
type RedisPublisher struct {
	client  pubsubClient
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(client pubsubClient, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

func (p *RedisPublisher) PublishVoteSubmitted(ctx context.Context, event domain.VoteSubmitted) error {
	if err := p.publish(ctx, TypeVoteSubmitted, event.CreatedAt, event); err != nil {
		return err
	}
	p.logger.Info("published vote submitted event",
		zap.String("user_id", event.UserID),
		zap.String("vote_id", event.Vote.ID),
	)
	return nil
}

func (p *RedisPublisher) PublishShareCompleted(ctx context.Context, event domain.ShareCompleted) error {
	if event.Status == domain.ShareFailed {
		return fmt.Errorf("publish share event: failed shares are not announced")
	}
	eventType := shareRoutingKey(event.Status)
	if err := p.publish(ctx, eventType, event.CreatedAt, event); err != nil {
		return err
	}
	p.logger.Info("published share event",
		zap.String("type", eventType),
		zap.String("user_id", event.UserID),
		zap.String("vote_id", event.VoteID),
	)
	return nil
}

func (p *RedisPublisher) publish(ctx context.Context, eventType string, at time.Time, payload interface{}) error {
	body, err := encodeEvent(eventType, at, payload)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, string(body)).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// Close is a no-op; the Redis client is shared with the cache.
func (p *RedisPublisher) Close() error {
	return nil
}
