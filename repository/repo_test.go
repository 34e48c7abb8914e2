package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"chat-archive/config"
	"chat-archive/constant"
	"chat-archive/entities"
	"chat-archive/testutil"
)

func newTestRepo(t *testing.T) StreamRepository {
	t.Helper()
	r, err := NewRepo(testutil.NewDB(t), config.Database{Driver: config.DriverSQLite}, config.Retry{MaxAttempts: 5, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, r.Migrate(context.Background()))
	return r
}

func TestFindActiveStreamByURL(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	done := &entities.Stream{URL: "https://twitch.tv/a", Platform: constant.PlatformTwitch, DownloadStatus: constant.DownloadStatusCompleted}
	require.NoError(t, r.CreateStream(ctx, done))

	_, err := r.FindActiveStreamByURL(ctx, "https://twitch.tv/a")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	paused := &entities.Stream{URL: "https://twitch.tv/a", Platform: constant.PlatformTwitch, DownloadStatus: constant.DownloadStatusPaused}
	require.NoError(t, r.CreateStream(ctx, paused))

	found, err := r.FindActiveStreamByURL(ctx, "https://twitch.tv/a")
	require.NoError(t, err)
	assert.Equal(t, paused.ID, found.ID)
}

func TestUpdateResumeTimestampIfPaused(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	stream := &entities.Stream{URL: "https://twitch.tv/b", Platform: constant.PlatformTwitch, DownloadStatus: constant.DownloadStatusCompleted}
	require.NoError(t, r.CreateStream(ctx, stream))

	require.NoError(t, r.UpdateResumeTimestampIfPaused(ctx, stream.ID, &at))
	got, err := r.FindStreamByID(ctx, stream.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ResumeTimestamp)

	require.NoError(t, r.UpdateStream(ctx, stream.ID, map[string]interface{}{"download_status": constant.DownloadStatusPaused}))
	require.NoError(t, r.UpdateResumeTimestampIfPaused(ctx, stream.ID, &at))
	got, err = r.FindStreamByID(ctx, stream.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResumeTimestamp)
	assert.True(t, at.Equal(*got.ResumeTimestamp))
}

func TestUpdateStreamIfDownloading(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	stream := &entities.Stream{URL: "https://twitch.tv/c", Platform: constant.PlatformTwitch, DownloadStatus: constant.DownloadStatusPaused}
	require.NoError(t, r.CreateStream(ctx, stream))

	updated, err := r.UpdateStreamIfDownloading(ctx, stream.ID, map[string]interface{}{"download_status": constant.DownloadStatusCompleted})
	require.NoError(t, err)
	assert.False(t, updated)
	got, err := r.FindStreamByID(ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.DownloadStatusPaused, got.DownloadStatus)

	require.NoError(t, r.UpdateStream(ctx, stream.ID, map[string]interface{}{"download_status": constant.DownloadStatusDownloading}))
	updated, err = r.UpdateStreamIfDownloading(ctx, stream.ID, map[string]interface{}{"download_status": constant.DownloadStatusCompleted})
	require.NoError(t, err)
	assert.True(t, updated)
	got, err = r.FindStreamByID(ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.DownloadStatusCompleted, got.DownloadStatus)
}

func TestDeleteStreamRemovesMessages(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	keep := &entities.Stream{URL: "https://twitch.tv/keep", Platform: constant.PlatformTwitch, DownloadStatus: constant.DownloadStatusCompleted}
	gone := &entities.Stream{URL: "https://twitch.tv/gone", Platform: constant.PlatformTwitch, DownloadStatus: constant.DownloadStatusCompleted}
	require.NoError(t, r.CreateStream(ctx, keep))
	require.NoError(t, r.CreateStream(ctx, gone))

	now := time.Now().UTC()
	msgs := []*entities.TwitchChatMessage{
		{MessageGroupID: constant.MessageGroupMessages, Timestamp: now, StreamID: keep.ID, AuthorName: "a"},
		{MessageGroupID: constant.MessageGroupMessages, Timestamp: now, StreamID: gone.ID, AuthorName: "b"},
		{MessageGroupID: constant.MessageGroupBans, Timestamp: now, StreamID: gone.ID, AuthorName: "b"},
	}
	require.NoError(t, r.GetDB().Create(&msgs).Error)

	require.NoError(t, r.DeleteStream(ctx, gone.ID, &entities.TwitchChatMessage{}))

	_, err := r.FindStreamByID(ctx, gone.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var remaining int64
	require.NoError(t, r.GetDB().Model(&entities.TwitchChatMessage{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}

func TestListStreamsNewestFirst(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	for _, u := range []string{"https://twitch.tv/1", "https://twitch.tv/2"} {
		require.NoError(t, r.CreateStream(ctx, &entities.Stream{URL: u, Platform: constant.PlatformTwitch, DownloadStatus: constant.DownloadStatusCompleted}))
	}

	streams, err := r.ListStreams(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, "https://twitch.tv/2", streams[0].URL)
}
