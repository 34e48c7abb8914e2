package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chat-archive/config"
	"chat-archive/constant"
	"chat-archive/pkg/objectstore"
	"chat-archive/repository"
	server2 "chat-archive/server"
	"chat-archive/service"
)

type filterFlags struct {
	groups        []int
	excludeBanned bool
	moderators    bool
	username      string
	message       string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntSliceVar(&f.groups, "groups", nil, "message group ids (1 messages, 2 bans, 3 subs)")
	cmd.Flags().BoolVar(&f.excludeBanned, "exclude-banned", false, "drop messages of banned users")
	cmd.Flags().BoolVar(&f.moderators, "moderators", false, "only messages of moderators")
	cmd.Flags().StringVar(&f.username, "username", "", "author name substring")
	cmd.Flags().StringVar(&f.message, "message", "", "message text substring")
}

func (f *filterFlags) filter() service.Filter {
	out := service.Filter{
		IncludeBannedUsers: !f.excludeBanned,
		Moderators:         f.moderators,
		Username:           f.username,
		Message:            f.message,
	}
	for _, g := range f.groups {
		out.MessageGroupIDs = append(out.MessageGroupIDs, constant.MessageGroup(g))
	}
	return out
}

func export(cfg *config.Config) *cobra.Command {
	var (
		flags  filterFlags
		format string
		outDir string
		upload bool
	)
	cmd := &cobra.Command{
		Use:   "export <stream-id>",
		Short: "export the messages of a stream to a file or object storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := server2.SetupLogger(cfg)
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid stream id %q", args[0])
			}
			exportFormat, err := service.ParseExportFormat(format)
			if err != nil {
				return err
			}

			repo, err := repository.NewRepo(cfg.DB, cfg.Database, cfg.Retry)
			if err != nil {
				return err
			}
			defer repo.Close()

			file, err := service.NewQueryService(repo).Export(ctx, uint(id), flags.filter(), exportFormat)
			if err != nil {
				return err
			}

			if upload {
				store, err := objectstore.New(ctx, cfg.Export)
				if err != nil {
					return err
				}
				key := file.ObjectKey(uint(id))
				if err := store.Put(ctx, key, file.ContentType, file.Body); err != nil {
					return err
				}
				zerolog.Ctx(ctx).Info().Str("bucket", cfg.Export.Bucket).Str("key", key).Msg("export uploaded")
				return nil
			}

			path := filepath.Join(outDir, file.Filename+"."+string(file.Format))
			if err := os.WriteFile(path, file.Body, 0o644); err != nil {
				return err
			}
			zerolog.Ctx(ctx).Info().Str("path", path).Int("bytes", len(file.Body)).Msg("export written")
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", "json", "json or csv")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write the file to")
	cmd.Flags().BoolVar(&upload, "upload", false, "upload to the configured object storage instead")
	return cmd
}
