package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"chat-archive/constant"
	"chat-archive/dto"
	"chat-archive/entities"
	"chat-archive/pkg/metrics"
	"chat-archive/pkg/source"
	"chat-archive/repository"
)

type twitchPlatform struct{}

func (twitchPlatform) Kind() constant.Platform {
	return constant.PlatformTwitch
}

func (twitchPlatform) SourceGroups() []string {
	return []string{"messages", "bans", "subscriptions"}
}

func (twitchPlatform) Model() any {
	return &entities.TwitchChatMessage{}
}

func (twitchPlatform) UsernameColumns() []string {
	return []string{"author_name", "author_display_name"}
}

func (twitchPlatform) NewTransformer(repo repository.StreamRepository, streamID uint, opts TransformerOptions) Transformer {
	return &twitchTransformer{
		streamID: streamID,
		writer:   NewBatchWriter(repo, opts.Batch, constant.PlatformTwitch.String(), batchOptions[entities.TwitchChatMessage](opts)...),
	}
}

func (twitchPlatform) Messages(q *gorm.DB) ([]dto.Message, error) {
	var rows []entities.TwitchChatMessage
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]dto.Message, 0, len(rows))
	for _, m := range rows {
		colour := m.Colour
		out = append(out, dto.Message{
			ID:             m.ID,
			UUID:           m.MessageID,
			MessageGroupID: m.MessageGroupID,
			Timestamp:      m.Timestamp,
			Author: dto.MessageAuthor{
				ID:    m.AuthorID,
				Name:  twitchAuthorName(m),
				IsMod: m.IsModerator,
				IsSub: m.IsSubscriber,
				Color: &colour,
			},
			Message:       m.Message,
			CreatedAt:     m.CreatedAt,
			SystemMessage: m.SystemMessage,
			BanType:       m.BanType,
		})
	}
	return out, nil
}

func (twitchPlatform) Export(q *gorm.DB) ([]dto.ExportRecord, error) {
	var rows []entities.TwitchChatMessage
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]dto.ExportRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, dto.TwitchExportRecord{
			MessageType:   m.MessageGroupID.String(),
			Time:          m.Timestamp,
			Message:       m.Message,
			AuthorName:    twitchAuthorName(m),
			SystemMessage: m.SystemMessage,
			BanType:       m.BanType,
			IsSubscriber:  m.IsSubscriber,
			IsModerator:   m.IsModerator,
		})
	}
	return out, nil
}

func (twitchPlatform) ExportHeader() []string {
	return dto.TwitchExportHeader
}

func twitchAuthorName(m entities.TwitchChatMessage) string {
	if m.AuthorDisplayName != "" {
		return m.AuthorDisplayName
	}
	return m.AuthorName
}

type twitchTransformer struct {
	streamID uint
	writer   *BatchWriter[entities.TwitchChatMessage]
}

func (t *twitchTransformer) Transform(ctx context.Context, ev source.Event) Result {
	group, ok := Classify(ev.MessageType)
	if !ok {
		metrics.EventsDropped.WithLabelValues(constant.PlatformTwitch.String(), "unrecognized").Inc()
		zerolog.Ctx(ctx).Info().Str("message_type", ev.MessageType).Msg("unknown message type")
		return failed("%w: %q", ErrUnrecognizedType, ev.MessageType)
	}

	var rec entities.TwitchChatMessage
	if ev.MessageType == "ban_user" {
		rec = twitchBan(ev, group, t.streamID)
	} else {
		rec = twitchRegular(ev, group, t.streamID)
	}

	if err := t.writer.Append(ctx, rec, t.streamID); err != nil {
		return failed("save twitch message: %w", err)
	}
	return stored()
}

func (t *twitchTransformer) Close(ctx context.Context) error {
	return t.writer.Close(ctx)
}

// twitchBan builds the record of a ban or timeout. Ban events carry no
// author, so the banned user stands in for it.
func twitchBan(ev source.Event, group constant.MessageGroup, streamID uint) entities.TwitchChatMessage {
	banType := "permaban"
	if ev.BanType == "timeout" {
		banType = "timeout"
	}
	systemMessage := fmt.Sprintf("User %s got %s", ev.BannedUser, banType)
	// Ban events carry no author; the name stands in for a missing target id.
	authorID := ev.AuthorOrEmpty().TargetID
	if authorID == "" {
		authorID = ev.BannedUser
	}

	return entities.TwitchChatMessage{
		MessageGroupID:    group,
		Timestamp:         eventTime(ev),
		StreamID:          streamID,
		AuthorName:        ev.BannedUser,
		AuthorID:          authorID,
		AuthorDisplayName: ev.BannedUser,
		SystemMessage:     &systemMessage,
		BanDuration:       ev.BanDuration,
		BanType:           &banType,
	}
}

func twitchRegular(ev source.Event, group constant.MessageGroup, streamID uint) entities.TwitchChatMessage {
	author := ev.AuthorOrEmpty()
	rec := entities.TwitchChatMessage{
		MessageID:         ev.MessageID,
		MessageGroupID:    group,
		Timestamp:         eventTime(ev),
		StreamID:          streamID,
		AuthorName:        author.Name,
		AuthorID:          author.ID,
		AuthorDisplayName: author.DisplayName,
		IsModerator:       author.IsModerator,
		IsSubscriber:      author.IsSubscriber,
		Colour:            ev.Colour,
		Message:           ev.Message,
	}
	if strings.Contains(ev.MessageType, "subscription") {
		rec.CumulativeMonths = ev.CumulativeMonths
		if ev.SystemMessage != "" {
			systemMessage := ev.SystemMessage
			rec.SystemMessage = &systemMessage
		}
	}
	return rec
}

// eventTime falls back to the receive time for events without a timestamp.
func eventTime(ev source.Event) time.Time {
	if t, ok := ev.Time(); ok {
		return t
	}
	return time.Now().UTC()
}
