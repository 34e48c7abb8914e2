package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chat-archive/config"
	"chat-archive/repository"
	server2 "chat-archive/server"
)

func migrate(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema",
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
			zerolog.Ctx(ctx).Info().Str("driver", cfg.Database.Driver).Msg("schema migrated")
			return nil
		},
	}
}
