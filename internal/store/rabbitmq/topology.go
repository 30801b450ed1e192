package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetterQueue is the queue that receives deliveries rejected without requeue.
func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

// declareQueues declares the durable main queue. With deadLetter set, the main queue dead-letters
// reject/nack(requeue=false) to <queue>.dlq. Producers and consumers must agree on this flag, since
// RabbitMQ refuses to redeclare a queue with different arguments.
func declareQueues(ch *amqp.Channel, queue string, deadLetter bool) error {
	if !deadLetter {
		_, err := ch.QueueDeclare(
			queue,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false,
			nil,
		)
		return err
	}

	dlqQ := DeadLetterQueue(queue)

	// DLQ
	if _, err := ch.QueueDeclare(dlqQ, true, false, false, false, nil); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}
