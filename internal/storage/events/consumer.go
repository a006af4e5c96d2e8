package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/behzadon/podium/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type EventHandler interface {
	HandleVoteSubmitted(ctx context.Context, event *domain.VoteSubmitted) error
	HandleShareCompleted(ctx context.Context, event *domain.ShareCompleted) error
}

type RabbitMQConsumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	handler   EventHandler
	logger    *zap.Logger
	queueName string
}

func NewRabbitMQConsumer(
	host string,
	port int,
	user, password, vhost string,
	queueName string,
	handler EventHandler,
	logger *zap.Logger,
) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(dialURL(host, port, user, password, vhost))
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		cleanup(nil, conn, logger)
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		cleanup(ch, conn, logger)
		return nil, fmt.Errorf("set QoS: %w", err)
	}
	if err := declareTopology(ch, queueName); err != nil {
		cleanup(ch, conn, logger)
		return nil, err
	}

	return &RabbitMQConsumer{
		conn:      conn,
		channel:   ch,
		handler:   handler,
		logger:    logger,
		queueName: queueName,
	}, nil
}

func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Error("Consumer channel closed")
					return
				}

				if err := c.handleMessage(ctx, msg); err != nil {
					c.logger.Error("Failed to handle message",
						zap.Error(err),
						zap.String("routing_key", msg.RoutingKey),
					)
					// Undecodable messages would loop forever if requeued.
					if err := msg.Nack(false, !isPoison(err)); err != nil {
						c.logger.Error("Failed to nack message", zap.Error(err))
					}
					continue
				}

				if err := msg.Ack(false); err != nil {
					c.logger.Error("Failed to ack message", zap.Error(err))
				}
			}
		}
	}()

	return nil
}

type poisonError struct{ err error }

func (e poisonError) Error() string { return e.err.Error() }
func (e poisonError) Unwrap() error { return e.err }

func isPoison(err error) bool {
	var pe poisonError
	return errors.As(err, &pe)
}

func (c *RabbitMQConsumer) handleMessage(ctx context.Context, msg amqp.Delivery) error {
	return dispatch(ctx, c.handler, msg.Body)
}

func dispatch(ctx context.Context, handler EventHandler, body []byte) error {
	var event envelope
	if err := json.Unmarshal(body, &event); err != nil {
		return poisonError{fmt.Errorf("unmarshal event: %w", err)}
	}

	switch event.Type {
	case TypeVoteSubmitted:
		var vs domain.VoteSubmitted
		if err := json.Unmarshal(event.Data, &vs); err != nil {
			return poisonError{fmt.Errorf("unmarshal vote submitted: %w", err)}
		}
		return handler.HandleVoteSubmitted(ctx, &vs)

	case TypeShareVerified, TypeShareSkipped:
		var sc domain.ShareCompleted
		if err := json.Unmarshal(event.Data, &sc); err != nil {
			return poisonError{fmt.Errorf("unmarshal share completed: %w", err)}
		}
		return handler.HandleShareCompleted(ctx, &sc)

	default:
		return poisonError{fmt.Errorf("unknown event type: %s", event.Type)}
	}
}

func (c *RabbitMQConsumer) Close() error {
	var errs []error

	if err := c.channel.Close(); err != nil {
		c.logger.Error("Failed to close RabbitMQ channel", zap.Error(err))
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}

	if err := c.conn.Close(); err != nil {
		c.logger.Error("Failed to close RabbitMQ connection", zap.Error(err))
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %v", errs)
	}
	return nil
}
