package rabbitmq

import (
	"fmt"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer owns one connection and channel subscribed to a queue in manual-ack mode.
type Consumer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	tag        string
	deliveries <-chan amqp.Delivery
}

func NewConsumer(url, queue string, prefetch int, deadLetter bool) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}

	fail := func(step string, err error) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	if err := declareQueues(ch, queue, deadLetter); err != nil {
		return fail("queue declare", err)
	}

	// Unacked deliveries stay buffered until the next flush, so the prefetch window caps a batch.
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fail("qos", err)
		}
	}

	tag := "chat-batch-worker-" + ulid.Make().String()
	msgs, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return fail("consume", err)
	}

	return &Consumer{conn: conn, ch: ch, queue: queue, tag: tag, deliveries: msgs}, nil
}

func (c *Consumer) Deliveries() <-chan amqp.Delivery {
	return c.deliveries
}

func (c *Consumer) Queue() string {
	return c.queue
}

// Cancel stops new deliveries while keeping the channel open, so buffered deliveries can still be
// acked or rejected.
func (c *Consumer) Cancel() error {
	return c.ch.Cancel(c.tag, false)
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
