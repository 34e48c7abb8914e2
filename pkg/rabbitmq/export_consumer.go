package rabbitmq

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"chat-archive/config"
)

type exportConsumer[T any] struct {
	conn       *amqp.Connection
	cfg        *config.RabbitMQ
	handler    Handler[T]
	numWorkers int
	maxTries   uint
}

// Consume runs export jobs. Failed jobs are retried with exponential
// backoff and then rejected to the dead letter queue.
func (c exportConsumer[T]) Consume(ctx context.Context, dependencies T) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareExportTopology(ch, c.cfg.Kind); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("queue", ExportQueue).Msg("failed to declare topology")
		return err
	}

	deliveries, err := subscribe(ctx, ch, ExportQueue, c.numWorkers)
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("queue", ExportQueue).
		Str("exchange", ExportExchange).
		Str("routing_key", ExportRoutingKey).
		Int("workers", c.numWorkers).
		Msg("export consumer started")

	return dispatch(ctx, deliveries, c.numWorkers, func(workerID int, msg amqp.Delivery) {
		operation := func() (struct{}, error) {
			err := c.handler(ctx, msg, dependencies)
			if errors.Is(err, ErrNonRetryable) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}

		bo := backoff.NewExponentialBackOff()
		bo.MaxInterval = 10 * time.Second

		_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(c.maxTries))
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int("worker_id", workerID).Msg("failed to handle export job after all retries")
			if nackErr := msg.Nack(false, false); nackErr != nil {
				zerolog.Ctx(ctx).Error().Err(nackErr).Msg("failed to nack message to send to DLQ")
			}
			return
		}
		if ackErr := msg.Ack(false); ackErr != nil {
			zerolog.Ctx(ctx).Error().Err(ackErr).Msg("failed to acknowledge message")
		}
	})
}

func NewExportConsumer[T any](
	conn *amqp.Connection,
	cfg *config.RabbitMQ,
	numWorkers int,
	handler Handler[T],
) Consumer[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &exportConsumer[T]{
		conn:       conn,
		cfg:        cfg,
		handler:    handler,
		numWorkers: numWorkers,
		maxTries:   5,
	}
}
