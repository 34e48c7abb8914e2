package handler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-archive/config"
	"chat-archive/constant"
	"chat-archive/dto"
	"chat-archive/pkg/rabbitmq"
	"chat-archive/pkg/source"
	"chat-archive/repository"
	"chat-archive/service"
	"chat-archive/testutil"
)

type memoryStore struct {
	objects map[string][]byte
}

func (s *memoryStore) Put(_ context.Context, key, _ string, body []byte) error {
	s.objects[key] = body
	return nil
}

func setup(t *testing.T) (ServiceDependencies, repository.StreamRepository, *memoryStore) {
	t.Helper()
	repo, err := repository.NewRepo(testutil.NewDB(t), config.Database{Driver: config.DriverSQLite}, config.Retry{MaxAttempts: 5, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(context.Background()))

	replay := source.Replay{
		Meta: source.Info{Title: "replayed", NativeID: "vod1", Status: constant.StreamStatusPast},
		Events: []source.Event{
			{MessageType: "text_message", Timestamp: time.Now().UnixMicro(), Message: "hi", Author: &source.Author{Name: "user1"}},
		},
	}
	manager := service.NewManager(context.Background(), repo, replay, service.NewRegistry(), config.Batch{Size: 10, FlushInterval: time.Hour})
	t.Cleanup(func() {
		assert.NoError(t, manager.Shutdown(5*time.Second))
	})

	store := &memoryStore{objects: map[string][]byte{}}
	exporter := service.NewExporter(service.NewQueryService(repo), store)
	return ServiceDependencies{Manager: manager, Exporter: exporter}, repo, store
}

func delivery(t *testing.T, v any) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return amqp.Delivery{Body: body}
}

func TestStreamCommandHandler(t *testing.T) {
	ctx := context.Background()
	deps, repo, _ := setup(t)

	url := "https://www.twitch.tv/replayed"
	require.NoError(t, StreamCommandHandler(ctx, delivery(t, dto.StreamCommand{Action: constant.StreamActionStart, URL: url}), deps))

	streams, err := repo.ListStreams(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	id := streams[0].ID

	require.Eventually(t, func() bool {
		s, err := repo.FindStreamByID(ctx, id)
		return err == nil && s.DownloadStatus == constant.DownloadStatusCompleted && s.MessageCount == 1
	}, 5*time.Second, 10*time.Millisecond)

	err = StreamCommandHandler(ctx, delivery(t, dto.StreamCommand{Action: constant.StreamActionPause, StreamID: id}), deps)
	assert.ErrorIs(t, err, service.ErrNotRunning)

	require.NoError(t, StreamCommandHandler(ctx, delivery(t, dto.StreamCommand{Action: constant.StreamActionDelete, StreamID: id}), deps))
	streams, err = repo.ListStreams(ctx)
	require.NoError(t, err)
	assert.Empty(t, streams)

	err = StreamCommandHandler(ctx, delivery(t, dto.StreamCommand{Action: "rewind"}), deps)
	assert.ErrorIs(t, err, ErrUnknownAction)

	err = StreamCommandHandler(ctx, amqp.Delivery{Body: []byte("{")}, deps)
	assert.Error(t, err)
}

func TestExportJobHandler(t *testing.T) {
	ctx := context.Background()
	deps, repo, store := setup(t)

	stream, err := deps.Manager.Start(ctx, "https://www.twitch.tv/replayed")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, err := repo.FindStreamByID(ctx, stream.ID)
		return err == nil && s.DownloadStatus == constant.DownloadStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	job := dto.ExportJobMessage{StreamID: stream.ID, Format: constant.ExportFormatJSON, IncludeBannedUsers: true}
	require.NoError(t, ExportJobHandler(ctx, delivery(t, job), deps))
	require.Len(t, store.objects, 1)
	for key, body := range store.objects {
		assert.Contains(t, key, "exports/")
		assert.Contains(t, key, "vod1_")
		assert.Contains(t, string(body), `"message": "hi"`)
	}

	job.StreamID = 999
	assert.ErrorIs(t, ExportJobHandler(ctx, delivery(t, job), deps), rabbitmq.ErrNonRetryable)

	job.StreamID = stream.ID
	job.Format = "xml"
	assert.ErrorIs(t, ExportJobHandler(ctx, delivery(t, job), deps), rabbitmq.ErrNonRetryable)

	assert.ErrorIs(t, ExportJobHandler(ctx, amqp.Delivery{Body: []byte("nope")}, deps), rabbitmq.ErrNonRetryable)
}
