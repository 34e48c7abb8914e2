package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-archive/constant"
	"chat-archive/dto"
)

var exportClock = func() time.Time {
	return time.Date(2024, 6, 2, 8, 30, 15, 0, time.UTC)
}

func TestParseExportFormat(t *testing.T) {
	format, err := ParseExportFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, constant.ExportFormatCSV, format)

	_, err = ParseExportFormat("xml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestQueryService_ExportCSV(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	stream := seedTwitch(t, repo)
	nativeID := "fixture"
	require.NoError(t, repo.UpdateStream(ctx, stream.ID, map[string]interface{}{"stream_id": nativeID}))

	svc := NewQueryService(repo)
	svc.now = exportClock

	file, err := svc.Export(ctx, stream.ID, NewFilter(), constant.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "fixture_2024-06-02_08-30-15", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "exports/1/fixture_2024-06-02_08-30-15.csv", file.ObjectKey(1))

	rows, err := csv.NewReader(strings.NewReader(string(file.Body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, dto.TwitchExportHeader, rows[0])
	ban := rows[1]
	assert.Equal(t, "bans", ban[0])
	at, err := time.Parse(time.RFC3339Nano, ban[1])
	require.NoError(t, err)
	assert.True(t, queryBase.Add(3*time.Minute).Equal(at))
	assert.Equal(t, []string{"", "user2", "", "permaban", "false", "false"}, ban[2:])
	assert.Equal(t, "User1", rows[4][3])
	assert.Equal(t, "true", rows[4][7])
}

func TestQueryService_ExportJSON(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	stream := seedTwitch(t, repo)
	svc := NewQueryService(repo)
	svc.now = exportClock

	f := NewFilter()
	f.Username = "user1"
	file, err := svc.Export(ctx, stream.ID, f, constant.ExportFormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "export_2024-06-02_08-30-15", file.Filename)
	assert.Equal(t, "application/json", file.ContentType)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(file.Body, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "100% hype", records[0]["message"])
	assert.Equal(t, "messages", records[0]["message_type"])
}

func TestQueryService_ExportEmpty(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	stream := createStream(t, repo, "https://www.youtube.com/watch?v=empty", constant.PlatformYouTube, constant.DownloadStatusCompleted)
	svc := NewQueryService(repo)

	file, err := svc.Export(ctx, stream.ID, NewFilter(), constant.ExportFormatCSV)
	require.NoError(t, err)
	assert.Empty(t, file.Body)

	file, err = svc.Export(ctx, stream.ID, NewFilter(), constant.ExportFormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(file.Body))

	_, err = svc.Export(ctx, stream.ID, NewFilter(), "pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memoryStore) Put(_ context.Context, key, contentType string, body []byte) error {
	if s.err != nil {
		return s.err
	}
	s.objects[key] = body
	s.types[key] = contentType
	return nil
}

func TestExporter_Run(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	stream := seedTwitch(t, repo)
	query := NewQueryService(repo)
	query.now = exportClock
	store := newMemoryStore()
	exporter := NewExporter(query, store)

	job := dto.ExportJobMessage{
		JobID:           uuid.New(),
		StreamID:        stream.ID,
		Format:          constant.ExportFormatCSV,
		MessageGroupIDs: []constant.MessageGroup{constant.MessageGroupBans, constant.MessageGroupSubs},
	}
	key, err := exporter.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "exports/1/export_2024-06-02_08-30-15.csv", key)
	assert.Equal(t, "text/csv", store.types[key])

	rows, err := csv.NewReader(strings.NewReader(string(store.objects[key]))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	store.err = errors.New("bucket gone")
	_, err = exporter.Run(ctx, job)
	assert.ErrorContains(t, err, "bucket gone")

	job.StreamID = 404
	_, err = exporter.Run(ctx, job)
	assert.ErrorIs(t, err, ErrStreamNotFound)
}
