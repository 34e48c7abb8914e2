package rabbitmq

import (
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNonRetryable marks handler errors that retrying cannot fix. Such
// messages are dead-lettered at once.
var ErrNonRetryable = errors.New("non-retryable error")

const (
	StreamExchange   = "stream_exchange"
	StreamQueue      = "stream_commands_queue"
	StreamRoutingKey = "stream.command"

	ExportExchange      = "export_exchange"
	ExportQueue         = "export_queue"
	ExportRoutingKey    = "export.request"
	ExportDLX           = "export_exchange_dlx"
	ExportDLQ           = "export_queue_dlq"
	ExportDLQRoutingKey = "dlq.export.request"
)

// declareStreamTopology declares the stream command exchange and queue.
// Publishers and consumers both call it so either side can start first.
func declareStreamTopology(ch *amqp.Channel, kind string) error {
	if err := ch.ExchangeDeclare(StreamExchange, kind, true, false, false, false, nil); err != nil {
		return err
	}
	q, err := ch.QueueDeclare(StreamQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, StreamRoutingKey, StreamExchange, false, nil)
}

// declareExportTopology declares the export queue together with its dead
// letter exchange and queue.
func declareExportTopology(ch *amqp.Channel, kind string) error {
	if err := ch.ExchangeDeclare(ExportExchange, kind, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(ExportDLX, kind, true, false, false, false, nil); err != nil {
		return err
	}

	dlq, err := ch.QueueDeclare(ExportDLQ, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(dlq.Name, ExportDLQRoutingKey, ExportDLX, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    ExportDLX,
		"x-dead-letter-routing-key": ExportDLQRoutingKey,
	}
	q, err := ch.QueueDeclare(ExportQueue, true, false, false, false, args)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, ExportRoutingKey, ExportExchange, false, nil)
}
