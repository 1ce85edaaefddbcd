package config

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// Consumer reads one durable queue and hands each message body to a
// handler. Failed messages are requeued.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

func NewConsumer(queueName string) (*Consumer, error) {
	if RabbitMQ == nil {
		return nil, fmt.Errorf("RabbitMQ connection not initialized")
	}

	ch, err := RabbitMQ.Channel()
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		conn:    RabbitMQ,
		channel: ch,
		queue:   q.Name,
	}, nil
}

// Consume blocks delivering messages to handler until the channel is
// closed (connection loss or Close).
func (c *Consumer) Consume(handler func([]byte) error) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return err
	}

	log.WithField("queue", c.queue).Info("consumer running")
	for msg := range msgs {
		if err := handler(msg.Body); err != nil {
			log.WithField("queue", c.queue).Errorf("handle message failed: %v", err)
			msg.Nack(false, true) // requeue
		} else {
			msg.Ack(false)
		}
	}
	return fmt.Errorf("consumer channel for %s closed", c.queue)
}

func (c *Consumer) Close() error {
	return c.channel.Close()
}
