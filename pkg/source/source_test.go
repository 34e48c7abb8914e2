package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/youtube/v3"

	"chat-archive/constant"
)

func drain(t *testing.T, chat Chat) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := chat.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestRouter_SkipsEventsUpToResumePoint(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	replay := Replay{Events: []Event{
		{MessageType: "text_message", Timestamp: base.UnixMicro(), Message: "old"},
		{MessageType: "text_message", Timestamp: base.Add(time.Second).UnixMicro(), Message: "edge"},
		{MessageType: "text_message", Message: "untimed"},
		{MessageType: "text_message", Timestamp: base.Add(2 * time.Second).UnixMicro(), Message: "new"},
	}}
	router := Router{Twitch: replay}

	resume := base.Add(time.Second)
	chat, err := router.Open(context.Background(), Request{Platform: constant.PlatformTwitch, ResumeFrom: &resume})
	require.NoError(t, err)

	events := drain(t, chat)
	require.Len(t, events, 2)
	assert.Equal(t, "untimed", events[0].Message)
	assert.Equal(t, "new", events[1].Message)
}

func TestRouter_UnknownPlatform(t *testing.T) {
	_, err := Router{}.Open(context.Background(), Request{Platform: constant.PlatformYouTube})
	assert.ErrorIs(t, err, ErrUnsupportedURL)
}

func TestTwitchChannel(t *testing.T) {
	channel, err := TwitchChannel("https://www.twitch.tv/SomeStreamer")
	require.NoError(t, err)
	assert.Equal(t, "somestreamer", channel)

	_, err = TwitchChannel("https://www.twitch.tv/videos/123456")
	assert.ErrorIs(t, err, ErrUnsupportedURL)

	_, err = TwitchChannel("https://www.twitch.tv/")
	assert.ErrorIs(t, err, ErrUnsupportedURL)
}

func TestYouTubeVideoID(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=asd":     "asd",
		"https://youtu.be/abc123":                 "abc123",
		"https://www.youtube.com/live/xyz?si=foo": "xyz",
	}
	for raw, want := range cases {
		got, err := YouTubeVideoID(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	_, err := YouTubeVideoID("https://www.youtube.com/channel/UC123")
	assert.ErrorIs(t, err, ErrUnsupportedURL)
}

func TestParseISODuration(t *testing.T) {
	d := parseISODuration("PT1H2M3S")
	require.NotNil(t, d)
	assert.Equal(t, 3723.0, *d)
	assert.Nil(t, parseISODuration("P0D"))
}

func TestFileOpener(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vod123.jsonl")
	content := `{"message_type":"text_message","timestamp":1700000000000000,"message":"hi","author":{"name":"user1","id":"1"}}

{"message_type":"ban_user","timestamp":1700000001000000,"banned_user":"user2","ban_type":"timeout","ban_duration":600}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	chat, err := FileOpener{Path: path}.Open(context.Background(), Request{})
	require.NoError(t, err)
	defer chat.Close()

	assert.Equal(t, "vod123", chat.Info().NativeID)
	assert.Equal(t, constant.StreamStatusPast, chat.Info().Status)

	events := drain(t, chat)
	require.Len(t, events, 2)
	assert.Equal(t, "user1", events[0].AuthorOrEmpty().Name)
	require.NotNil(t, events[1].BanDuration)
	assert.Equal(t, 600, *events[1].BanDuration)
	ts, ok := events[1].Time()
	assert.True(t, ok)
	assert.Equal(t, int64(1700000001), ts.Unix())
}

func TestFileOpener_MalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o600))

	chat, err := FileOpener{Path: path}.Open(context.Background(), Request{})
	require.NoError(t, err)
	defer chat.Close()

	_, err = chat.Next(context.Background())
	assert.ErrorContains(t, err, "line 1")
}

func TestTwitchClearChat(t *testing.T) {
	chat := &twitchChat{events: make(chan Event, 4), done: make(chan struct{})}
	now := time.Now()

	chat.onClearChat(twitch.ClearChatMessage{TargetUsername: "troll", TargetUserID: "42", BanDuration: 600, Time: now})
	chat.onClearChat(twitch.ClearChatMessage{TargetUsername: "spammer", TargetUserID: "43", Time: now})

	timeout := <-chat.events
	assert.Equal(t, "ban_user", timeout.MessageType)
	assert.Equal(t, "timeout", timeout.BanType)
	assert.Equal(t, "42", timeout.AuthorOrEmpty().TargetID)
	require.NotNil(t, timeout.BanDuration)

	ban := <-chat.events
	assert.Equal(t, "ban", ban.BanType)
	assert.Nil(t, ban.BanDuration)
}

func TestTwitchUserNotice(t *testing.T) {
	chat := &twitchChat{events: make(chan Event, 1), done: make(chan struct{})}

	chat.onUserNotice(twitch.UserNoticeMessage{
		MsgID:     "resub",
		SystemMsg: "user1 subscribed for 5 months",
		MsgParams: map[string]string{"msg-param-cumulative-months": "5"},
		User:      twitch.User{Name: "user1", DisplayName: "User1"},
		Tags:      map[string]string{"subscriber": "1"},
	})

	ev := <-chat.events
	assert.Equal(t, "resubscription", ev.MessageType)
	require.NotNil(t, ev.CumulativeMonths)
	assert.Equal(t, 5, *ev.CumulativeMonths)
	assert.True(t, ev.AuthorOrEmpty().IsSubscriber)
}

func TestYouTubeEvent(t *testing.T) {
	ev, end := youtubeEvent(&youtube.LiveChatMessage{
		Id: "msg-1",
		Snippet: &youtube.LiveChatMessageSnippet{
			Type:        "superChatEvent",
			PublishedAt: "2024-05-01T12:00:00.5Z",
			SuperChatDetails: &youtube.LiveChatSuperChatDetails{
				AmountMicros:        5000000,
				Currency:            "USD",
				AmountDisplayString: "$5.00",
				UserComment:         "great stream",
			},
		},
		AuthorDetails: &youtube.LiveChatMessageAuthorDetails{DisplayName: "fan", ChannelId: "UC1", IsChatModerator: true, IsChatSponsor: true},
	})
	require.False(t, end)
	assert.Equal(t, "paid_message", ev.MessageType)
	assert.Equal(t, "great stream", ev.Message)
	require.NotNil(t, ev.Money)
	assert.Equal(t, 5.0, ev.Money.Amount)
	assert.Len(t, ev.AuthorOrEmpty().Badges, 2)

	removal, _ := youtubeEvent(&youtube.LiveChatMessage{
		Snippet: &youtube.LiveChatMessageSnippet{
			Type:                  "messageDeletedEvent",
			MessageDeletedDetails: &youtube.LiveChatMessageDeletedDetails{DeletedMessageId: "msg-1"},
		},
	})
	assert.Equal(t, "remove_chat_item", removal.ActionType)
	assert.Equal(t, "msg-1", removal.TargetMessageID)

	_, end = youtubeEvent(&youtube.LiveChatMessage{Snippet: &youtube.LiveChatMessageSnippet{Type: "chatEndedEvent"}})
	assert.True(t, end)
}
