package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chat-archive/config"
	"chat-archive/constant"
	"chat-archive/dto"
	"chat-archive/pkg/rabbitmq"
	server2 "chat-archive/server"
	"chat-archive/service"
)

// enqueue publishes stream commands and export jobs for a running server.
func enqueue(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "publish work to the queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start <url>",
		Short: "start archiving a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return publishCommand(cfg, dto.StreamCommand{Action: constant.StreamActionStart, URL: args[0]})
		},
	})

	for _, action := range []constant.StreamAction{
		constant.StreamActionPause,
		constant.StreamActionResume,
		constant.StreamActionStop,
		constant.StreamActionDelete,
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   string(action) + " <stream-id>",
			Short: string(action) + " a stream",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid stream id %q", args[0])
				}
				return publishCommand(cfg, dto.StreamCommand{Action: action, StreamID: uint(id)})
			},
		})
	}

	var (
		flags  filterFlags
		format string
	)
	exportCmd := &cobra.Command{
		Use:   "export <stream-id>",
		Short: "queue an export to object storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid stream id %q", args[0])
			}
			exportFormat, err := service.ParseExportFormat(format)
			if err != nil {
				return err
			}
			f := flags.filter()
			return withPublisher(cfg, func(ctx context.Context, p rabbitmq.Publisher) error {
				jobID, err := p.PublishExportJob(ctx, dto.ExportJobMessage{
					StreamID:           uint(id),
					Format:             exportFormat,
					MessageGroupIDs:    f.MessageGroupIDs,
					IncludeBannedUsers: f.IncludeBannedUsers,
					Moderators:         f.Moderators,
					Username:           f.Username,
					Message:            f.Message,
				})
				if err != nil {
					return err
				}
				zerolog.Ctx(ctx).Info().Str("job_id", jobID.String()).Msg("export job queued")
				return nil
			})
		},
	}
	flags.register(exportCmd)
	exportCmd.Flags().StringVar(&format, "format", "json", "json or csv")
	cmd.AddCommand(exportCmd)

	return cmd
}

func publishCommand(cfg *config.Config, command dto.StreamCommand) error {
	return withPublisher(cfg, func(ctx context.Context, p rabbitmq.Publisher) error {
		id, err := p.PublishStreamCommand(ctx, command)
		if err != nil {
			return err
		}
		zerolog.Ctx(ctx).Info().Str("message_id", id.String()).Str("action", string(command.Action)).Msg("stream command queued")
		return nil
	})
}

func withPublisher(cfg *config.Config, fn func(ctx context.Context, p rabbitmq.Publisher) error) error {
	ctx, cancel := context.WithCancel(server2.SetupLogger(cfg))
	defer cancel()

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(ctx, rabbitmq.NewPublisher(conn, cfg.Queue))
}
