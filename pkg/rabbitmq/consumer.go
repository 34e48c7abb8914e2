package rabbitmq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"chat-archive/config"
)

type Consumer[T any] interface {
	Consume(ctx context.Context, dependencies T) error
}

type Handler[T any] func(ctx context.Context, msg amqp.Delivery, dependencies T) error

type consumer[T any] struct {
	conn       *amqp.Connection
	cfg        *config.RabbitMQ
	handler    Handler[T]
	numWorkers int
}

// Consume handles stream commands. A command is acknowledged whether or not
// it succeeded; a failed lifecycle transition is not worth redelivering.
func (c consumer[T]) Consume(ctx context.Context, dependencies T) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareStreamTopology(ch, c.cfg.Kind); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("queue", StreamQueue).Msg("failed to declare topology")
		return err
	}

	deliveries, err := subscribe(ctx, ch, StreamQueue, c.numWorkers)
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("queue", StreamQueue).
		Str("exchange", StreamExchange).
		Str("routing_key", StreamRoutingKey).
		Int("workers", c.numWorkers).
		Msg("stream command consumer started")

	return dispatch(ctx, deliveries, c.numWorkers, func(workerID int, msg amqp.Delivery) {
		if err := c.handler(ctx, msg, dependencies); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int("worker_id", workerID).Msg("failed to handle stream command")
		}
		if err := msg.Ack(false); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to acknowledge message")
		}
	})
}

func NewConsumer[T any](
	conn *amqp.Connection,
	cfg *config.RabbitMQ,
	numWorkers int,
	handler Handler[T],
) Consumer[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &consumer[T]{
		conn:       conn,
		cfg:        cfg,
		handler:    handler,
		numWorkers: numWorkers,
	}
}

func subscribe(ctx context.Context, ch *amqp.Channel, queue string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := ch.Qos(prefetch, 0, false); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("queue", queue).Msg("failed to set QoS")
		return nil, err
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("queue", queue).Msg("failed to consume queue")
		return nil, err
	}
	return deliveries, nil
}

// dispatch fans deliveries out to numWorkers goroutines until the channel
// closes or ctx is done, then waits for in-flight messages.
func dispatch(ctx context.Context, deliveries <-chan amqp.Delivery, numWorkers int, work func(workerID int, msg amqp.Delivery)) error {
	jobs := make(chan amqp.Delivery, numWorkers)
	var wg sync.WaitGroup
	for i := 1; i <= numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for msg := range jobs {
				work(workerID, msg)
			}
		}(i)
	}

	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				close(jobs)
				wg.Wait()
				return nil
			}

			jobs <- delivery
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
}
