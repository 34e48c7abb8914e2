package cmd

import (
	"github.com/spf13/cobra"

	"chat-archive/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "chat-archive",
		Short:         "archive Twitch and YouTube chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		server(config),
		migrate(config),
		importChat(config),
		export(config),
		enqueue(config),
	)
	return rootCmd
}
