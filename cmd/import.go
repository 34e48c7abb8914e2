package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chat-archive/config"
	"chat-archive/pkg/source"
	"chat-archive/repository"
	server2 "chat-archive/server"
	"chat-archive/service"
)

// importChat stores an archived chat log as a new stream, running it
// through the same worker as live chat.
func importChat(cfg *config.Config) *cobra.Command {
	var (
		url   string
		title string
	)
	cmd := &cobra.Command{
		Use:   "import <chat.jsonl>",
		Short: "import a chat-downloader JSON lines log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := server2.SetupLogger(cfg)
			repo, err := repository.NewRepo(cfg.DB, cfg.Database, cfg.Retry)
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.Migrate(ctx); err != nil {
				return err
			}

			opener := source.FileOpener{Path: args[0], Title: title}
			manager := service.NewManager(ctx, repo, opener, service.NewRegistry(), cfg.Batch)
			stream, err := manager.Start(ctx, url)
			if err != nil {
				return err
			}
			manager.Wait()

			stream, err = repo.FindStreamByID(ctx, stream.ID)
			if err != nil {
				return err
			}
			zerolog.Ctx(ctx).Info().
				Uint("stream_id", stream.ID).
				Str("download_status", string(stream.DownloadStatus)).
				Int64("messages", stream.MessageCount).
				Msg("import finished")
			if stream.Error != nil {
				return fmt.Errorf("import failed: %s", *stream.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "URL of the stream the log was recorded from")
	cmd.Flags().StringVar(&title, "title", "", "stream title, defaults to the file name")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
