package events

import (
	"context"
	"fmt"
	"time"

	"github.com/behzadon/podium/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel channel
	logger  *zap.Logger
}

func cleanup(ch *amqp.Channel, conn *amqp.Connection, logger *zap.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("Failed to close RabbitMQ channel", zap.Error(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("Failed to close RabbitMQ connection", zap.Error(err))
		}
	}
}

func dialURL(host string, port int, user, password, vhost string) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", user, password, host, port, vhost)
}

// NewRabbitMQPublisher declares the podium topic exchange and binds queue to
// every vote and share event.
func NewRabbitMQPublisher(host string, port int, user, password, vhost, queue string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(dialURL(host, port, user, password, vhost))
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		cleanup(nil, conn, logger)
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, queue); err != nil {
		cleanup(ch, conn, logger)
		return nil, err
	}

	return &RabbitMQPublisher{
		conn:    conn,
		channel: ch,
		logger:  logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, queue string) error {
	err := ch.ExchangeDeclare(
		Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	for _, key := range []string{"vote.*", "share.*"} {
		if err := ch.QueueBind(queue, key, Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", queue, key, err)
		}
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	var errs []error

	if err := p.channel.Close(); err != nil {
		p.logger.Error("Failed to close RabbitMQ channel", zap.Error(err))
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Error("Failed to close RabbitMQ connection", zap.Error(err))
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %v", errs)
	}
	return nil
}

func (p *RabbitMQPublisher) PublishVoteSubmitted(ctx context.Context, event domain.VoteSubmitted) error {
	return p.publishEvent(ctx, TypeVoteSubmitted, event.CreatedAt, event)
}

func (p *RabbitMQPublisher) PublishShareCompleted(ctx context.Context, event domain.ShareCompleted) error {
	if event.Status == domain.ShareFailed {
		return fmt.Errorf("publish share event: failed shares are not announced")
	}
	return p.publishEvent(ctx, shareRoutingKey(event.Status), event.CreatedAt, event)
}

func (p *RabbitMQPublisher) publishEvent(ctx context.Context, eventType string, at time.Time, payload interface{}) error {
	body, err := encodeEvent(eventType, at, payload)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(ctx,
		Exchange,
		eventType,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish message to RabbitMQ",
			zap.Error(err),
			zap.String("routing_key", eventType),
		)
		return fmt.Errorf("publish message: %w", err)
	}

	return nil
}
