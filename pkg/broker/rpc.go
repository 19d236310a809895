package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"quiz_analytics_service/pkg/monitoring"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RPCClient performs blocking request/reply against one peer-service queue.
// Replies come back on an exclusive server-named queue and are matched to the
// waiting caller by correlation id. The client never retries: a timeout or
// transport error is the caller's problem.
type RPCClient struct {
	ch      *amqp.Channel
	queue   string
	replyTo string
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan reply
}

func NewRPCClient(conn *Conn, queue string, timeout time.Duration) (*RPCClient, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := declareDurable(ch, queue); err != nil {
		return nil, err
	}

	// exclusive auto-delete reply queue, one per client
	replyQ, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, err
	}

	deliveries, err := ch.Consume(replyQ.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, err
	}

	c := &RPCClient{
		ch:      ch,
		queue:   queue,
		replyTo: replyQ.Name,
		timeout: timeout,
		pending: make(map[string]chan reply),
	}

	go c.dispatch(deliveries)

	return c, nil
}

func (c *RPCClient) dispatch(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		c.mu.Lock()
		waiting, ok := c.pending[d.CorrelationId]
		if ok {
			delete(c.pending, d.CorrelationId)
		}
		c.mu.Unlock()
		if !ok {
			continue // late reply after the caller timed out
		}

		var r reply
		if err := json.Unmarshal(d.Body, &r); err != nil {
			r = reply{Error: fmt.Sprintf("malformed reply: %v", err)}
		}
		waiting <- r
	}
}

// Call sends req to the peer under the given pattern and decodes the reply
// into resp. resp may be a *json.RawMessage to pass the payload through
// verbatim.
func (c *RPCClient) Call(ctx context.Context, pattern string, req, resp interface{}) (err error) {
	start := time.Now()
	defer func() { monitoring.ObserveRPC(pattern, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", pattern, err)
	}

	id := uuid.New().String()
	body, err := json.Marshal(envelope{Pattern: pattern, Data: data, ID: id})
	if err != nil {
		return err
	}

	waiting := make(chan reply, 1)
	c.mu.Lock()
	c.pending[id] = waiting
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	err = c.ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: id,
		ReplyTo:       c.replyTo,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", c.queue, err)
	}

	select {
	case r := <-waiting:
		if r.Error != "" {
			return fmt.Errorf("%s: %s", pattern, r.Error)
		}
		if resp != nil {
			if err := json.Unmarshal(r.Data, resp); err != nil {
				return fmt.Errorf("decode %s reply: %w", pattern, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", pattern, ctx.Err())
	}
}

func (c *RPCClient) Close() error {
	return c.ch.Close()
}
