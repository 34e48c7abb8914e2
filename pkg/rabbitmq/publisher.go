package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"chat-archive/config"
	"chat-archive/dto"
)

type Publisher interface {
	PublishStreamCommand(ctx context.Context, cmd dto.StreamCommand) (uuid.UUID, error)
	PublishExportJob(ctx context.Context, job dto.ExportJobMessage) (uuid.UUID, error)
}

type publisher struct {
	conn *amqp.Connection
	cfg  *config.RabbitMQ
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) Publisher {
	return &publisher{conn: conn, cfg: cfg}
}

// PublishStreamCommand assigns the command a message id if it has none and
// returns it.
func (p *publisher) PublishStreamCommand(ctx context.Context, cmd dto.StreamCommand) (uuid.UUID, error) {
	if cmd.MessageID == uuid.Nil {
		cmd.MessageID = uuid.New()
	}
	err := p.publish(ctx, declareStreamTopology, StreamExchange, StreamRoutingKey, cmd.MessageID, cmd)
	return cmd.MessageID, err
}

// PublishExportJob assigns the job an id if it has none and returns it.
func (p *publisher) PublishExportJob(ctx context.Context, job dto.ExportJobMessage) (uuid.UUID, error) {
	if job.JobID == uuid.Nil {
		job.JobID = uuid.New()
	}
	err := p.publish(ctx, declareExportTopology, ExportExchange, ExportRoutingKey, job.JobID, job)
	return job.JobID, err
}

func (p *publisher) publish(
	ctx context.Context,
	declare func(ch *amqp.Channel, kind string) error,
	exchange, routingKey string,
	id uuid.UUID,
	payload any,
) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declare(ch, p.cfg.Kind); err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id.String(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Debug().Str("exchange", exchange).Str("routing_key", routingKey).Str("message_id", id.String()).Msg("message published")
	return nil
}
