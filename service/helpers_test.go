package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-archive/config"
	"chat-archive/constant"
	"chat-archive/entities"
	"chat-archive/pkg/source"
	"chat-archive/repository"
	"chat-archive/testutil"
)

func newTestRepo(t *testing.T) repository.StreamRepository {
	t.Helper()
	repo, err := repository.NewRepo(testutil.NewDB(t), config.Database{Driver: config.DriverSQLite}, config.Retry{MaxAttempts: 5, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func createStream(t *testing.T, repo repository.StreamRepository, url string, platform constant.Platform, status constant.DownloadStatus) *entities.Stream {
	t.Helper()
	stream := &entities.Stream{URL: url, Platform: platform, DownloadStatus: status}
	require.NoError(t, repo.CreateStream(context.Background(), stream))
	return stream
}

func reload(t *testing.T, repo repository.StreamRepository, id uint) *entities.Stream {
	t.Helper()
	stream, err := repo.FindStreamByID(context.Background(), id)
	require.NoError(t, err)
	return stream
}

func micros(t time.Time) int64 {
	return t.UnixMicro()
}

// feed is a source whose events are pushed by the test. Closing events
// ends the chat.
type feed struct {
	info   source.Info
	events chan source.Event
	opened chan source.Request
}

func newFeed(info source.Info) *feed {
	return &feed{
		info:   info,
		events: make(chan source.Event, 16),
		opened: make(chan source.Request, 4),
	}
}

func (f *feed) Open(_ context.Context, req source.Request) (source.Chat, error) {
	f.opened <- req
	return &feedChat{feed: f}, nil
}

type feedChat struct {
	feed *feed
}

func (c *feedChat) Info() source.Info {
	return c.feed.info
}

func (c *feedChat) Next(ctx context.Context) (source.Event, error) {
	select {
	case ev, ok := <-c.feed.events:
		if !ok {
			return source.Event{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return source.Event{}, ctx.Err()
	}
}

func (c *feedChat) Close() error {
	return nil
}
