package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPQueue publishes listing events to durable RabbitMQ queues, one per topic.
type AMQPQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger logrus.FieldLogger

	mu       sync.Mutex
	declared map[string]bool
}

func NewAMQPQueue(url string, logger logrus.FieldLogger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, logger: logger, declared: make(map[string]bool)}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

// Publish encodes payload as JSON and sends it persistently.
func (q *AMQPQueue) Publish(topic string, payload any) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.Publish(
		"",    // exchange
		topic, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Subscribe consumes topic and hands each decoded ListingEvent to handler.
// A failed delivery is requeued once, then dropped.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload any) error) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	q.mu.Lock()
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("register consumer %s: %w", topic, err)
	}

	go func() {
		for d := range msgs {
			var ev ListingEvent
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				q.logger.WithField("topic", topic).WithError(err).Warn("invalid event body")
				_ = d.Ack(false)
				continue
			}
			if err := handler(ev); err != nil {
				q.logger.WithField("topic", topic).WithError(err).Warn("event handler failed")
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}()
	return nil
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var (
	_ Queue = (*InMemoryQueue)(nil)
	_ Queue = (*AMQPQueue)(nil)
)
