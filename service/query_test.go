package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-archive/constant"
	"chat-archive/dto"
	"chat-archive/entities"
	"chat-archive/repository"
)

var queryBase = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

// seedTwitch stores user1 chatting twice and user2 subscribing and then
// getting banned.
func seedTwitch(t *testing.T, repo repository.StreamRepository) *entities.Stream {
	t.Helper()
	stream := createStream(t, repo, "https://www.twitch.tv/fixture", constant.PlatformTwitch, constant.DownloadStatusCompleted)
	banType := "permaban"
	rows := []entities.TwitchChatMessage{
		{MessageGroupID: constant.MessageGroupMessages, Timestamp: queryBase, StreamID: stream.ID, AuthorName: "user1", AuthorDisplayName: "User1", Message: "first", IsModerator: true},
		{MessageGroupID: constant.MessageGroupSubs, Timestamp: queryBase.Add(time.Minute), StreamID: stream.ID, AuthorName: "user2", Message: "subbed"},
		{MessageGroupID: constant.MessageGroupMessages, Timestamp: queryBase.Add(2 * time.Minute), StreamID: stream.ID, AuthorName: "user1", AuthorDisplayName: "User1", Message: "100% hype"},
		{MessageGroupID: constant.MessageGroupBans, Timestamp: queryBase.Add(3 * time.Minute), StreamID: stream.ID, AuthorName: "user2", BanType: &banType},
	}
	require.NoError(t, repo.GetDB().Create(&rows).Error)
	return stream
}

func messageIDs(resp *dto.MessagesResponse) []uint {
	ids := make([]uint, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

func groupsOf(resp *dto.MessagesResponse) []constant.MessageGroup {
	groups := make([]constant.MessageGroup, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		groups = append(groups, m.MessageGroupID)
	}
	return groups
}

func TestQueryService_Messages(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	stream := seedTwitch(t, repo)
	svc := NewQueryService(repo)

	// Rows of another stream never leak in.
	other := createStream(t, repo, "https://www.twitch.tv/other", constant.PlatformTwitch, constant.DownloadStatusCompleted)
	require.NoError(t, repo.GetDB().Create(&entities.TwitchChatMessage{
		MessageGroupID: constant.MessageGroupMessages, Timestamp: queryBase, StreamID: other.ID, AuthorName: "user1",
	}).Error)

	t.Run("username", func(t *testing.T) {
		f := NewFilter()
		f.Username = "USER1"
		resp, err := svc.Messages(ctx, stream.ID, f, Page{})
		require.NoError(t, err)
		require.Len(t, resp.Messages, 2)
		for _, m := range resp.Messages {
			assert.Equal(t, "User1", m.Author.Name)
		}
	})

	t.Run("groups without messages ignore banned exclusion", func(t *testing.T) {
		f := Filter{MessageGroupIDs: []constant.MessageGroup{constant.MessageGroupBans, constant.MessageGroupSubs}}
		resp, err := svc.Messages(ctx, stream.ID, f, Page{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []constant.MessageGroup{constant.MessageGroupBans, constant.MessageGroupSubs}, groupsOf(resp))
	})

	t.Run("all groups equal no groups", func(t *testing.T) {
		implicit, err := svc.Messages(ctx, stream.ID, NewFilter(), Page{})
		require.NoError(t, err)

		f := NewFilter()
		f.MessageGroupIDs = constant.AllMessageGroups
		explicit, err := svc.Messages(ctx, stream.ID, f, Page{})
		require.NoError(t, err)

		assert.Len(t, implicit.Messages, 4)
		assert.Equal(t, messageIDs(implicit), messageIDs(explicit))
	})

	t.Run("exclude banned users", func(t *testing.T) {
		resp, err := svc.Messages(ctx, stream.ID, Filter{}, Page{})
		require.NoError(t, err)
		require.Len(t, resp.Messages, 2)
		for _, m := range resp.Messages {
			assert.Equal(t, "User1", m.Author.Name)
		}
	})

	t.Run("newest first with pagination", func(t *testing.T) {
		resp, err := svc.Messages(ctx, stream.ID, NewFilter(), Page{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, "100% hype", resp.Messages[0].Message)
		assert.Equal(t, "subbed", resp.Messages[1].Message)
		assert.Equal(t, int64(4), resp.Pagination.TotalCount)
		assert.True(t, resp.Pagination.HasNext)
		assert.True(t, resp.Pagination.HasPrevious)
		assert.Equal(t, constant.PlatformTwitch, resp.Platform)
	})

	t.Run("default page", func(t *testing.T) {
		resp, err := svc.Messages(ctx, stream.ID, NewFilter(), Page{})
		require.NoError(t, err)
		assert.Equal(t, DefaultPageLimit, resp.Pagination.Limit)
		assert.False(t, resp.Pagination.HasNext)
		assert.False(t, resp.Pagination.HasPrevious)
	})

	t.Run("message text is matched literally", func(t *testing.T) {
		f := NewFilter()
		f.Message = "100%"
		resp, err := svc.Messages(ctx, stream.ID, f, Page{})
		require.NoError(t, err)
		require.Len(t, resp.Messages, 1)
		assert.Equal(t, "100% hype", resp.Messages[0].Message)

		f.Message = "1_0"
		resp, err = svc.Messages(ctx, stream.ID, f, Page{})
		require.NoError(t, err)
		assert.Empty(t, resp.Messages)
	})

	t.Run("moderators", func(t *testing.T) {
		f := NewFilter()
		f.Moderators = true
		resp, err := svc.Messages(ctx, stream.ID, f, Page{})
		require.NoError(t, err)
		require.Len(t, resp.Messages, 1)
		assert.Equal(t, "first", resp.Messages[0].Message)
	})

	t.Run("date bounds are exclusive", func(t *testing.T) {
		from := queryBase
		to := queryBase.Add(3 * time.Minute)
		f := NewFilter()
		f.DateFrom = &from
		f.DateTo = &to
		resp, err := svc.Messages(ctx, stream.ID, f, Page{})
		require.NoError(t, err)
		assert.Len(t, resp.Messages, 2)
	})
}

func TestQueryService_MessagesOfBannedUsersAddedToSelection(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	stream := seedTwitch(t, repo)
	require.NoError(t, repo.GetDB().Create(&entities.TwitchChatMessage{
		MessageGroupID: constant.MessageGroupMessages, Timestamp: queryBase.Add(4 * time.Minute), StreamID: stream.ID, AuthorName: "user2", Message: "before ban",
	}).Error)
	svc := NewQueryService(repo)

	f := NewFilter()
	f.MessageGroupIDs = []constant.MessageGroup{constant.MessageGroupSubs}
	resp, err := svc.Messages(ctx, stream.ID, f, Page{})
	require.NoError(t, err)

	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "before ban", resp.Messages[0].Message)
	assert.Equal(t, "subbed", resp.Messages[1].Message)

	f.IncludeBannedUsers = false
	resp, err = svc.Messages(ctx, stream.ID, f, Page{})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "subbed", resp.Messages[0].Message)
}

func TestQueryService_YouTubeUsernameAndDeleted(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	stream := createStream(t, repo, "https://www.youtube.com/watch?v=asd", constant.PlatformYouTube, constant.DownloadStatusCompleted)
	rows := []entities.YouTubeChatMessage{
		{MessageGroupID: constant.MessageGroupMessages, Timestamp: queryBase, StreamID: stream.ID, AuthorName: "user1", Message: "a", Deleted: true},
		{MessageGroupID: constant.MessageGroupMessages, Timestamp: queryBase.Add(time.Second), StreamID: stream.ID, AuthorName: "user2", Message: "b"},
		{MessageGroupID: constant.MessageGroupMessages, Timestamp: queryBase.Add(2 * time.Second), StreamID: stream.ID, AuthorName: "user1", Message: "c"},
		{MessageGroupID: constant.MessageGroupSubs, Timestamp: queryBase.Add(3 * time.Second), StreamID: stream.ID, AuthorName: "user2", Message: "d"},
	}
	require.NoError(t, repo.GetDB().Create(&rows).Error)
	removed := rows[0].ID
	require.NoError(t, repo.GetDB().Create(&entities.YouTubeChatMessage{
		MessageGroupID: constant.MessageGroupBans, Timestamp: queryBase.Add(4 * time.Second), StreamID: stream.ID, AuthorName: "user1", TargetMessageID: &removed,
	}).Error)

	svc := NewQueryService(repo)
	f := NewFilter()
	f.Username = "user1"
	f.MessageGroupIDs = []constant.MessageGroup{constant.MessageGroupMessages}
	resp, err := svc.Messages(ctx, stream.ID, f, Page{})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)

	last := resp.Messages[1]
	assert.Equal(t, "a", last.Message)
	require.NotNil(t, last.Deleted)
	assert.True(t, *last.Deleted)

	f = NewFilter()
	f.MessageGroupIDs = []constant.MessageGroup{constant.MessageGroupBans}
	resp, err = svc.Messages(ctx, stream.ID, f, Page{})
	require.NoError(t, err)
	// the ban plus the messages of user1, who got a message removed
	require.Len(t, resp.Messages, 3)
	ban := resp.Messages[0]
	require.NotNil(t, ban.BanType)
	assert.Equal(t, "removed", *ban.BanType)
	require.NotNil(t, ban.TargetID)
	assert.Equal(t, removed, *ban.TargetID)
}

func TestQueryService_StreamNotFound(t *testing.T) {
	svc := NewQueryService(newTestRepo(t))
	_, err := svc.Messages(context.Background(), 999, NewFilter(), Page{})
	assert.ErrorIs(t, err, ErrStreamNotFound)
}
