package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"chat-archive/config"
	"chat-archive/constant"
	jobHandler "chat-archive/handler"
	"chat-archive/pkg/objectstore"
	"chat-archive/pkg/oops"
	"chat-archive/pkg/rabbitmq"
	"chat-archive/pkg/source"
	"chat-archive/pkg/tracing"
	"chat-archive/repository"
	"chat-archive/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(SetupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("tracing.Init")
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	repo, err := repository.NewRepo(cfg.DB, cfg.Database, cfg.Retry)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRepo")
		return
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Migrate")
		return
	}

	opener := source.Router{
		Twitch:  source.NewTwitchOpener(cfg.Source),
		YouTube: source.NewYouTubeOpener(cfg.Source),
	}
	manager := service.NewManager(ctx, repo, opener, service.NewRegistry(), cfg.Batch)
	if n, err := manager.Recover(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Recover")
	} else if n > 0 {
		zerolog.Ctx(ctx).Info().Int("streams", n).Msg("recovered interrupted streams")
	}

	query := service.NewQueryService(repo)
	api := &API{Manager: manager, Query: query}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	switch {
	case errors.Is(err, config.ErrQueueDisabled):
		zerolog.Ctx(ctx).Info().Msg("rabbitmq not configured, queue consumers disabled")
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
	default:
		api.Publisher = rabbitmq.NewPublisher(conn, cfg.Queue)
		startConsumers(ctx, cfg, conn, manager, query)
	}

	handler := http.Server{
		Handler:           NewRouter(ctx, api),
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("addr", handler.Addr).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}
	if err := manager.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("workers did not stop in time")
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

// startConsumers runs the stream command consumer, and the export consumer
// when object storage is configured.
func startConsumers(ctx context.Context, cfg *config.Config, conn *amqp.Connection, manager *service.Manager, query *service.QueryService) {
	deps := jobHandler.ServiceDependencies{Manager: manager}
	store, err := objectstore.New(ctx, cfg.Export)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("object storage unavailable, export consumer disabled")
	} else {
		deps.Exporter = service.NewExporter(query, store)
	}

	commandConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, jobHandler.StreamCommandHandler)
	go func() {
		if err := commandConsumer.Consume(ctx, deps); err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("stream command consumer error")
		}
	}()

	if deps.Exporter == nil {
		return
	}
	exportConsumer := rabbitmq.NewExportConsumer(conn, cfg.Queue, cfg.Server.Workers, jobHandler.ExportJobHandler)
	go func() {
		if err := exportConsumer.Consume(ctx, deps); err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("export consumer error")
		}
	}()
}

// SetupLogger returns a context carrying the root logger.
func SetupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	zerolog.ErrorStackMarshaler = oops.ZerologStackMarshaler

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
