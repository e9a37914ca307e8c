package buildsourceamqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/k11v/brickview/internal/app"
	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/buildsource"
)

var _ buildsource.Source = (*Source)(nil)

// Source consumes builds documents from a queue.
// Every message carries the whole collection.
type Source struct {
	connectionString string // required
	queue            string // required
	log              *slog.Logger
}

func New(connectionString string, queue string, logger *slog.Logger) *Source {
	if queue == "" {
		queue = app.AMQPQueueBuildsSnapshot
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		connectionString: connectionString,
		queue:            queue,
		log:              logger.With("component", "buildsourceamqp.Source"),
	}
}

// Watch consumes until ctx is done, reconnecting after failures.
func (s *Source) Watch(ctx context.Context, h buildsource.Handler) error {
	retries := 0
	for {
		consumeErr := s.consume(ctx, h, &retries)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Error("didn't consume", "err", consumeErr)
		h.HandleError(ctx, fmt.Errorf("buildsourceamqp.Source: %w", consumeErr))

		retries++
		select {
		case <-time.After(retryWaitDuration(retries - 1)):
		case <-ctx.Done():
			return ctx.Err()
		}
		s.log.Info("retrying", "retries", retries)
	}
}

func (s *Source) consume(ctx context.Context, h buildsource.Handler, retries *int) error {
	conn, err := amqp091.Dial(s.connectionString)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := app.DeclareAMQPQueue(ch, s.queue)
	if err != nil {
		return err
	}

	if err = ch.Qos(1, 0, false); err != nil {
		return err
	}

	messages, err := ch.Consume(q.Name, "brickview", false, false, false, false, nil)
	if err != nil {
		return err
	}

	s.log.Info("starting consuming", "queue", q.Name)
	for {
		select {
		case m, ok := <-messages:
			if !ok {
				return errors.New("delivery channel is closed")
			}
			if err = s.handle(ctx, h, m); err != nil {
				return err
			}
			if *retries > 0 {
				s.log.Info("recovered", "retries", *retries)
				*retries = 0
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handle passes one message to h.
// Malformed documents are rejected without requeueing, they won't get better.
func (s *Source) handle(ctx context.Context, h buildsource.Handler, m amqp091.Delivery) error {
	c, err := build.ParseDocument(m.Body)
	if err != nil {
		h.HandleError(ctx, fmt.Errorf("buildsourceamqp.Source: message %d: %w", m.DeliveryTag, err))
		if nackErr := m.Nack(false, false); nackErr != nil {
			return fmt.Errorf("nack: %w", nackErr)
		}
		return nil
	}

	h.HandleCollection(ctx, c)
	if ackErr := m.Ack(false); ackErr != nil {
		return fmt.Errorf("ack: %w", ackErr)
	}
	return nil
}

// retryWaitDuration calculates the wait duration for a retry.
// It is calculated using exponential backoff with jitter.
// It grows with each retry and stops growing after the thirteenth retry
// where it is chosen from the interval (32.4s, 97.4s).
// The first retry number is 0, the thirteenth is 12.
func retryWaitDuration(retry int) time.Duration {
	n := min(retry, 12)
	second := int(time.Second)

	// start with 0.5s
	duration := second / 2

	// multiply by 1.5 to the power of n
	for range n {
		duration /= 2
		duration *= 3
	}

	// add or subtract up to 50%
	jitter := rand.IntN(duration) - duration/2
	duration += jitter

	return time.Duration(duration)
}
