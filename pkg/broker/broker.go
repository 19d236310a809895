package broker

import (
	"encoding/json"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Patterns addressed over the queue transport. The queue a message lands on
// picks the service; the pattern picks the operation.
const (
	PatternLessonsCountTotals  = "lessons.count_totals"
	PatternUsersApplyQuizStats = "users.apply_quiz_stats"
	PatternQuizSubmitted       = "quiz.submitted"
)

// envelope is the on-wire shape shared by RPC requests and emitted events.
// Events carry no ID; RPC requests additionally set the AMQP correlation id
// and reply-to queue.
type envelope struct {
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data"`
	ID      string          `json:"id,omitempty"`
}

// reply carries either the peer's response payload or its error message.
type reply struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Conn wraps the AMQP connection shared by RPC clients, the publisher and
// the consumer. Each of those opens its own channel.
type Conn struct {
	conn *amqp.Connection
}

func Connect(url string) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	log.Println("Broker connection established")
	return &Conn{conn: conn}, nil
}

func (c *Conn) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) IsClosed() bool {
	return c.conn.IsClosed()
}

// declareDurable makes sure the destination queue survives broker restarts,
// matching the peers' queue options.
func declareDurable(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	return err
}
