package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPTransport carries job messages over a durable RabbitMQ queue.
//
// Prefetch equals the worker count, so the broker never hands a worker a new
// message before the previous one is acknowledged.
type AMQPTransport struct {
	queue string

	pubMu sync.Mutex
	pub   *amqp.Channel

	sub        *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func NewAMQPTransport(conn *amqp.Connection, queue string, prefetch int) (*AMQPTransport, error) {
	if prefetch < 1 {
		prefetch = 1
	}
	pub, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp publish channel: %w", err)
	}
	if _, err := pub.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", queue, err)
	}

	sub, err := conn.Channel()
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("amqp consume channel: %w", err)
	}
	if err := sub.Qos(prefetch, 0, false); err != nil {
		_ = pub.Close()
		_ = sub.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := sub.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = pub.Close()
		_ = sub.Close()
		return nil, fmt.Errorf("amqp consume %s: %w", queue, err)
	}

	return &AMQPTransport{queue: queue, pub: pub, sub: sub, deliveries: deliveries}, nil
}

func (t *AMQPTransport) Publish(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	return t.pub.PublishWithContext(ctx, "", t.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (t *AMQPTransport) Receive(ctx context.Context) (Delivery, error) {
	for {
		select {
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		case d, ok := <-t.deliveries:
			if !ok {
				return Delivery{}, ErrClosed
			}
			var m Message
			if err := json.Unmarshal(d.Body, &m); err != nil {
				// poison message: drop it, there is no retry
				_ = d.Nack(false, false)
				continue
			}
			return Delivery{Message: m, Ack: func() error { return d.Ack(false) }}, nil
		}
	}
}

func (t *AMQPTransport) Close() error {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	errPub := t.pub.Close()
	errSub := t.sub.Close()
	if errPub != nil {
		return errPub
	}
	return errSub
}
