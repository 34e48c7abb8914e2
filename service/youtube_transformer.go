package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"chat-archive/constant"
	"chat-archive/dto"
	"chat-archive/entities"
	"chat-archive/pkg/metrics"
	"chat-archive/pkg/source"
	"chat-archive/repository"
)

const (
	actionRemoveItem     = "remove_chat_item"
	actionRemoveByAuthor = "remove_chat_item_by_author"
)

type youtubePlatform struct{}

func (youtubePlatform) Kind() constant.Platform {
	return constant.PlatformYouTube
}

func (youtubePlatform) SourceGroups() []string {
	return []string{"messages", "bans", "superchat"}
}

func (youtubePlatform) Model() any {
	return &entities.YouTubeChatMessage{}
}

func (youtubePlatform) UsernameColumns() []string {
	return []string{"author_name"}
}

func (youtubePlatform) NewTransformer(repo repository.StreamRepository, streamID uint, opts TransformerOptions) Transformer {
	return &youtubeTransformer{
		repo:     repo,
		streamID: streamID,
		writer:   NewBatchWriter(repo, opts.Batch, constant.PlatformYouTube.String(), batchOptions[entities.YouTubeChatMessage](opts)...),
	}
}

func (youtubePlatform) Messages(q *gorm.DB) ([]dto.Message, error) {
	var rows []entities.YouTubeChatMessage
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]dto.Message, 0, len(rows))
	for _, m := range rows {
		deleted := m.Deleted
		out = append(out, dto.Message{
			ID:             m.ID,
			UUID:           m.MessageID,
			MessageGroupID: m.MessageGroupID,
			Timestamp:      m.Timestamp,
			Author: dto.MessageAuthor{
				ID:    m.AuthorID,
				Name:  m.AuthorName,
				IsMod: m.IsModerator,
				IsSub: m.IsMember,
			},
			Message:   m.Message,
			CreatedAt: m.CreatedAt,
			BanType:   youtubeBanType(m),
			TargetID:  m.TargetMessageID,
			Deleted:   &deleted,
		})
	}
	return out, nil
}

func (youtubePlatform) Export(q *gorm.DB) ([]dto.ExportRecord, error) {
	var rows []entities.YouTubeChatMessage
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]dto.ExportRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, dto.YouTubeExportRecord{
			MessageType:  m.MessageGroupID.String(),
			Time:         m.Timestamp,
			Message:      m.Message,
			AuthorName:   m.AuthorName,
			BanType:      youtubeBanType(m),
			IsSubscriber: m.IsMember,
			IsModerator:  m.IsModerator,
		})
	}
	return out, nil
}

func (youtubePlatform) ExportHeader() []string {
	return dto.YouTubeExportHeader
}

// youtubeBanType labels ban-group rows: removals point at the removed
// message, anything else was retracted.
func youtubeBanType(m entities.YouTubeChatMessage) *string {
	if m.MessageGroupID != constant.MessageGroupBans {
		return nil
	}
	label := "retracted"
	if m.TargetMessageID != nil {
		label = "removed"
	}
	return &label
}

type youtubeTransformer struct {
	repo     repository.StreamRepository
	streamID uint
	writer   *BatchWriter[entities.YouTubeChatMessage]
}

func (t *youtubeTransformer) Transform(ctx context.Context, ev source.Event) Result {
	switch ev.ActionType {
	case actionRemoveItem:
		return t.removeItem(ctx, ev)
	case actionRemoveByAuthor:
		// Removing all messages of an author is not tracked per message.
		metrics.EventsDropped.WithLabelValues(constant.PlatformYouTube.String(), "remove_by_author").Inc()
		zerolog.Ctx(ctx).Info().Str("banned_user", ev.BannedUser).Msg("ignoring removal by author")
		return skipped(nil)
	}

	group, ok := Classify(ev.MessageType)
	if !ok {
		metrics.EventsDropped.WithLabelValues(constant.PlatformYouTube.String(), "unrecognized").Inc()
		zerolog.Ctx(ctx).Info().Str("message_type", ev.MessageType).Msg("unknown youtube message type")
		return failed("%w: %q", ErrUnrecognizedType, ev.MessageType)
	}

	author := ev.AuthorOrEmpty()
	rec := entities.YouTubeChatMessage{
		MessageID:           ev.MessageID,
		MessageGroupID:      group,
		Timestamp:           eventTime(ev),
		StreamID:            t.streamID,
		AuthorName:          author.Name,
		AuthorID:            author.ID,
		IsModerator:         hasModeratorBadge(author.Badges),
		IsMember:            hasMemberBadge(author.Badges),
		Message:             ev.Message,
		HeaderPrimaryText:   ev.HeaderPrimaryText,
		HeaderSecondaryText: ev.HeaderSecondaryText,
	}
	if ev.Money != nil {
		rec.Money = &entities.Money{Amount: ev.Money.Amount, Currency: ev.Money.Currency, Text: ev.Money.Text}
	}

	if err := t.writer.Append(ctx, rec, t.streamID); err != nil {
		return failed("save youtube message: %w", err)
	}
	return stored()
}

// removeItem records the removal of a single message. Pending records are
// flushed first so the removed message can be found even when it arrived in
// the same batch.
func (t *youtubeTransformer) removeItem(ctx context.Context, ev source.Event) Result {
	if ev.TargetMessageID == "" {
		return failed("%w", ErrMissingTarget)
	}
	if err := t.writer.Flush(ctx); err != nil {
		return failed("flush before removal: %w", err)
	}

	var original entities.YouTubeChatMessage
	err := t.repo.Retry(ctx, func() error {
		return t.repo.GetDB().WithContext(ctx).
			Where("message_id = ? AND stream_id = ?", ev.TargetMessageID, t.streamID).
			Order("id").
			First(&original).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		zerolog.Ctx(ctx).Debug().Str("target_message_id", ev.TargetMessageID).Msg("removed message not found")
		return failed("%w: %s", ErrTargetNotFound, ev.TargetMessageID)
	}
	if err != nil {
		return failed("find removed message: %w", err)
	}

	targetID := original.ID
	rec := entities.YouTubeChatMessage{
		MessageGroupID:  constant.MessageGroupBans,
		Timestamp:       eventTime(ev),
		StreamID:        t.streamID,
		AuthorName:      original.AuthorName,
		AuthorID:        original.AuthorID,
		IsModerator:     original.IsModerator,
		IsMember:        original.IsMember,
		Message:         original.Message,
		TargetMessageID: &targetID,
	}
	markDeleted := func(tx *gorm.DB) error {
		return tx.Model(&entities.YouTubeChatMessage{}).Where("id = ?", targetID).Update("deleted", true).Error
	}

	if err := t.writer.AppendWith(ctx, rec, t.streamID, markDeleted); err != nil {
		return failed("save removal: %w", err)
	}
	return stored()
}

func (t *youtubeTransformer) Close(ctx context.Context) error {
	return t.writer.Close(ctx)
}

func hasModeratorBadge(badges []source.Badge) bool {
	for _, b := range badges {
		if b.IconName == "moderator" {
			return true
		}
	}
	return false
}

func hasMemberBadge(badges []source.Badge) bool {
	for _, b := range badges {
		if strings.Contains(b.Title, "Member") {
			return true
		}
	}
	return false
}
