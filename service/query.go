package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"chat-archive/constant"
	"chat-archive/dto"
	"chat-archive/entities"
	"chat-archive/repository"
)

const DefaultPageLimit = 500

// Filter selects the messages of one stream. The zero value selects
// nothing special except that banned users are excluded; use NewFilter for
// the API defaults.
type Filter struct {
	MessageGroupIDs    []constant.MessageGroup
	DateFrom           *time.Time
	DateTo             *time.Time
	IncludeBannedUsers bool
	Moderators         bool
	Username           string
	Message            string
}

func NewFilter() Filter {
	return Filter{IncludeBannedUsers: true}
}

type Page struct {
	Limit  int
	Offset int
}

type QueryService struct {
	repo repository.StreamRepository
	now  func() time.Time
}

func NewQueryService(repo repository.StreamRepository) *QueryService {
	return &QueryService{repo: repo, now: time.Now}
}

func (s *QueryService) Streams(ctx context.Context) ([]*entities.Stream, error) {
	return s.repo.ListStreams(ctx)
}

func (s *QueryService) StreamsByIDs(ctx context.Context, ids []uint) ([]*entities.Stream, error) {
	return s.repo.FindStreamsByIDs(ctx, ids)
}

func (s *QueryService) Stream(ctx context.Context, id uint) (*entities.Stream, error) {
	stream, err := s.repo.FindStreamByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStreamNotFound
	}
	return stream, err
}

// Messages returns one page of the filtered messages, newest first.
func (s *QueryService) Messages(ctx context.Context, streamID uint, f Filter, page Page) (*dto.MessagesResponse, error) {
	stream, err := s.Stream(ctx, streamID)
	if err != nil {
		return nil, err
	}
	platform, err := PlatformFor(stream.Platform)
	if err != nil {
		return nil, err
	}
	if page.Limit <= 0 {
		page.Limit = DefaultPageLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	var (
		total    int64
		messages []dto.Message
	)
	err = s.repo.Retry(ctx, func() error {
		if err := s.scope(ctx, stream.ID, platform, f).Count(&total).Error; err != nil {
			return err
		}
		q := s.scope(ctx, stream.ID, platform, f).
			Order("timestamp DESC").
			Order("id DESC").
			Offset(page.Offset).
			Limit(page.Limit)
		messages, err = platform.Messages(q)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &dto.MessagesResponse{
		StreamID: stream.ID,
		Platform: stream.Platform,
		Messages: messages,
		Pagination: dto.Pagination{
			TotalCount:  total,
			Limit:       page.Limit,
			Offset:      page.Offset,
			HasNext:     int64(page.Offset+page.Limit) < total,
			HasPrevious: page.Offset > 0,
		},
	}, nil
}

// scope builds the filtered query over the platform's message table.
//
// Banned users are the distinct authors of ban records in the same stream.
// When the messages group is selected (explicitly or by selecting no group)
// and banned users are excluded, their messages are dropped. When banned
// users are included but the messages group was not selected, the messages
// of banned users are added on top of the selected groups.
func (s *QueryService) scope(ctx context.Context, streamID uint, platform Platform, f Filter) *gorm.DB {
	db := s.repo.GetDB().WithContext(ctx)
	model := platform.Model()

	q := db.Model(model).Where("stream_id = ?", streamID)
	if f.DateTo != nil {
		q = q.Where("timestamp < ?", *f.DateTo)
	}
	if f.DateFrom != nil {
		q = q.Where("timestamp > ?", *f.DateFrom)
	}

	includeMessages := len(f.MessageGroupIDs) == 0 || slices.Contains(f.MessageGroupIDs, constant.MessageGroupMessages)
	banned := db.Model(model).
		Distinct("author_name").
		Where("stream_id = ? AND message_group_id = ?", streamID, constant.MessageGroupBans).
		Where("author_name IS NOT NULL AND author_name <> ''")

	switch {
	case !f.IncludeBannedUsers && includeMessages:
		if len(f.MessageGroupIDs) > 0 {
			q = q.Where("message_group_id IN ?", f.MessageGroupIDs)
		}
		q = q.Where("author_name NOT IN (?)", banned)
	case f.IncludeBannedUsers && !includeMessages:
		selected := db.Where("message_group_id IN ?", f.MessageGroupIDs)
		bannedMessages := db.Where("message_group_id = ?", constant.MessageGroupMessages).
			Where("author_name IN (?)", banned)
		q = q.Where(selected.Or(bannedMessages))
	default:
		if len(f.MessageGroupIDs) > 0 {
			q = q.Where("message_group_id IN ?", f.MessageGroupIDs)
		}
	}

	if f.Moderators {
		q = q.Where("is_moderator = ?", true)
	}
	if f.Username != "" {
		pattern := likePattern(f.Username)
		var cond *gorm.DB
		for _, col := range platform.UsernameColumns() {
			expr := "LOWER(" + col + ") LIKE ? ESCAPE '\\'"
			if cond == nil {
				cond = db.Where(expr, pattern)
			} else {
				cond = cond.Or(expr, pattern)
			}
		}
		q = q.Where(cond)
	}
	if f.Message != "" {
		q = q.Where("LOWER(message) LIKE ? ESCAPE '\\'", likePattern(f.Message))
	}
	return q
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches s anywhere, case-insensitively, with LIKE wildcards in
// s taken literally.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}
