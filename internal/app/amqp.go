package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/k11v/brickview/internal/build"
)

// AMQPQueueBuildsSnapshot carries whole builds documents, one per message.
const AMQPQueueBuildsSnapshot = "builds.snapshot"

// DeclareAMQPQueue declares a durable queue.
// Producers and consumers declare it the same way so either may start first.
func DeclareAMQPQueue(ch *amqp091.Channel, name string) (amqp091.Queue, error) {
	return ch.QueueDeclare(name, true, false, false, false, nil)
}

// AMQPPublisher sends builds documents to a queue.
type AMQPPublisher struct {
	connectionString string
	queue            string
}

func NewAMQPPublisher(connectionString string, queue string) *AMQPPublisher {
	if queue == "" {
		queue = AMQPQueueBuildsSnapshot
	}
	return &AMQPPublisher{connectionString: connectionString, queue: queue}
}

// PublishCollection publishes c as a builds document.
func (p *AMQPPublisher) PublishCollection(ctx context.Context, c build.Collection) error {
	body, err := build.MarshalDocument(c)
	if err != nil {
		return fmt.Errorf("app.AMQPPublisher: %w", err)
	}
	return p.publish(ctx, body)
}

func (p *AMQPPublisher) publish(ctx context.Context, body []byte) error {
	conn, err := amqp091.Dial(p.connectionString)
	if err != nil {
		return fmt.Errorf("app.AMQPPublisher: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("app.AMQPPublisher: %w", err)
	}
	defer ch.Close()

	if _, err = DeclareAMQPQueue(ch, p.queue); err != nil {
		return fmt.Errorf("app.AMQPPublisher: %w", err)
	}

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("app.AMQPPublisher: %w", err)
	}
	return nil
}
