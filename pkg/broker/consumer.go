package broker

import (
	"context"
	"encoding/json"
	"errors"

	"quiz_analytics_service/pkg/logger"
	"quiz_analytics_service/pkg/monitoring"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrDrop tells the consumer to reject a message without requeueing it.
// Handlers return it for payloads that can never be processed.
var ErrDrop = errors.New("broker: drop message")

// HandlerFunc processes one inbound message payload. A nil return acks the
// message; ErrDrop rejects it; any other error nacks it back onto the queue
// for redelivery.
type HandlerFunc func(ctx context.Context, data json.RawMessage) error

// Consumer reads a durable queue with a prefetch bound and dispatches
// messages to pattern handlers. Delivery is at-least-once: handlers must be
// duplicate-safe.
type Consumer struct {
	ch       *amqp.Channel
	queue    string
	prefetch int
	handlers map[string]HandlerFunc
}

func NewConsumer(conn *Conn, queue string, prefetch int) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declareDurable(ch, queue); err != nil {
		return nil, err
	}
	return &Consumer{
		ch:       ch,
		queue:    queue,
		prefetch: prefetch,
		handlers: make(map[string]HandlerFunc),
	}, nil
}

func (c *Consumer) Handle(pattern string, h HandlerFunc) {
	c.handlers[pattern] = h
}

// Start consumes until ctx is cancelled or the channel closes. Each delivery
// runs in its own goroutine; the prefetch count bounds how many are in
// flight unacknowledged.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return c.ch.Close()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			go c.process(ctx, d)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	var env envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		logger.Log.Warn("Dropping undecodable message",
			zap.String("queue", c.queue), zap.Error(err))
		monitoring.EventsConsumed.WithLabelValues("unknown", "dropped").Inc()
		d.Nack(false, false)
		return
	}

	handler, ok := c.handlers[env.Pattern]
	if !ok {
		logger.Log.Warn("No handler for pattern",
			zap.String("queue", c.queue), zap.String("pattern", env.Pattern))
		monitoring.EventsConsumed.WithLabelValues(env.Pattern, "dropped").Inc()
		d.Nack(false, false)
		return
	}

	switch err := handler(ctx, env.Data); {
	case err == nil:
		monitoring.EventsConsumed.WithLabelValues(env.Pattern, "ok").Inc()
		d.Ack(false)
	case errors.Is(err, ErrDrop):
		logger.Log.Warn("Handler rejected message",
			zap.String("pattern", env.Pattern), zap.Error(err))
		monitoring.EventsConsumed.WithLabelValues(env.Pattern, "dropped").Inc()
		d.Nack(false, false)
	default:
		logger.Log.Error("Handler failed, requeueing",
			zap.String("pattern", env.Pattern), zap.Error(err))
		monitoring.EventsConsumed.WithLabelValues(env.Pattern, "requeued").Inc()
		d.Nack(false, true)
	}
}
