package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"chat-archive/constant"
	"chat-archive/dto"
	"chat-archive/pkg/rabbitmq"
	"chat-archive/service"
)

var ErrUnknownAction = errors.New("unknown stream action")

type ServiceDependencies struct {
	Manager  *service.Manager
	Exporter *service.Exporter
}

func StreamCommandHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var cmd dto.StreamCommand
	if err := json.Unmarshal(msg.Body, &cmd); err != nil {
		return err
	}

	logger := zerolog.Ctx(ctx).With().
		Str("message_id", cmd.MessageID.String()).
		Str("action", string(cmd.Action)).
		Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Str("url", cmd.URL).Uint("stream_id", cmd.StreamID).Msg("received stream command")

	switch cmd.Action {
	case constant.StreamActionStart:
		_, err := deps.Manager.Start(ctx, cmd.URL)
		return err
	case constant.StreamActionPause:
		return deps.Manager.Pause(ctx, cmd.StreamID)
	case constant.StreamActionResume:
		return deps.Manager.Resume(ctx, cmd.StreamID)
	case constant.StreamActionStop:
		return deps.Manager.Stop(ctx, cmd.StreamID)
	case constant.StreamActionDelete:
		return deps.Manager.Delete(ctx, cmd.StreamID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}

func ExportJobHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var job dto.ExportJobMessage
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal export job")
		return errors.Join(rabbitmq.ErrNonRetryable, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.JobID.String()).
		Uint("stream_id", job.StreamID).
		Str("format", string(job.Format)).
		Msg("received export job")

	_, err := deps.Exporter.Run(ctx, job)
	if errors.Is(err, service.ErrStreamNotFound) || errors.Is(err, service.ErrUnsupportedFormat) {
		return errors.Join(rabbitmq.ErrNonRetryable, err)
	}
	return err
}
