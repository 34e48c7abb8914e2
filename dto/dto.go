package dto

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"chat-archive/constant"
	"chat-archive/entities"
)

type StreamRequest struct {
	URL string `json:"url" binding:"required"`
}

type StreamUpdateRequest struct {
	StreamIDs []uint `json:"stream_ids"`
}

type StreamResponse struct {
	ID                   uint                    `json:"id"`
	URL                  string                  `json:"url"`
	Title                *string                 `json:"title"`
	StreamID             *string                 `json:"stream_id"`
	Platform             constant.Platform       `json:"platform"`
	Status               *string                 `json:"status"`
	DownloadStatus       constant.DownloadStatus `json:"download_status"`
	Duration             *float64                `json:"duration"`
	UpdatedAt            time.Time               `json:"updated_at"`
	ResumeTimestamp      *time.Time              `json:"resume_timestamp"`
	LastMessageTimestamp *time.Time              `json:"last_message_timestamp"`
	MessageCount         int64                   `json:"message_count"`
	Error                *string                 `json:"error"`
}

func NewStreamResponse(s *entities.Stream) StreamResponse {
	return StreamResponse{
		ID:                   s.ID,
		URL:                  s.URL,
		Title:                s.Title,
		StreamID:             s.NativeID,
		Platform:             s.Platform,
		Status:               s.Status,
		DownloadStatus:       s.DownloadStatus,
		Duration:             s.Duration,
		UpdatedAt:            s.UpdatedAt,
		ResumeTimestamp:      s.ResumeTimestamp,
		LastMessageTimestamp: s.LastMessageTimestamp,
		MessageCount:         s.MessageCount,
		Error:                s.Error,
	}
}

func NewStreamResponses(streams []*entities.Stream) []StreamResponse {
	out := make([]StreamResponse, 0, len(streams))
	for _, s := range streams {
		out = append(out, NewStreamResponse(s))
	}
	return out
}

type MessageAuthor struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	IsMod bool    `json:"isMod"`
	IsSub bool    `json:"isSub"`
	Color *string `json:"color,omitempty"`
}

// Message is the API view of a stored chat record of either platform.
type Message struct {
	ID             uint                  `json:"id"`
	UUID           string                `json:"uuid"`
	MessageGroupID constant.MessageGroup `json:"messageGroupId"`
	Timestamp      time.Time             `json:"timestamp"`
	Author         MessageAuthor         `json:"author"`
	Message        string                `json:"message"`
	CreatedAt      time.Time             `json:"created_at"`
	SystemMessage  *string               `json:"systemMessage,omitempty"`
	BanType        *string               `json:"banType"`
	TargetID       *uint                 `json:"targetId,omitempty"`
	Deleted        *bool                 `json:"deleted,omitempty"`
}

type Pagination struct {
	TotalCount  int64 `json:"total_count"`
	Limit       int   `json:"limit"`
	Offset      int   `json:"offset"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

type MessagesResponse struct {
	StreamID   uint              `json:"stream_id"`
	Platform   constant.Platform `json:"platform"`
	Messages   []Message         `json:"messages"`
	Pagination Pagination        `json:"pagination"`
}

// ExportRecord is one row of an export file.
type ExportRecord interface {
	CSVRow() []string
}

var (
	TwitchExportHeader  = []string{"message_type", "time", "message", "author_name", "system_message", "ban_type", "is_subscriber", "is_moderator"}
	YouTubeExportHeader = []string{"message_type", "time", "message", "author_name", "ban_type", "is_subscriber", "is_moderator"}
)

type TwitchExportRecord struct {
	MessageType   string    `json:"message_type"`
	Time          time.Time `json:"time"`
	Message       string    `json:"message"`
	AuthorName    string    `json:"author_name"`
	SystemMessage *string   `json:"system_message"`
	BanType       *string   `json:"ban_type"`
	IsSubscriber  bool      `json:"is_subscriber"`
	IsModerator   bool      `json:"is_moderator"`
}

func (r TwitchExportRecord) CSVRow() []string {
	return []string{
		r.MessageType,
		r.Time.Format(time.RFC3339Nano),
		r.Message,
		r.AuthorName,
		deref(r.SystemMessage),
		deref(r.BanType),
		strconv.FormatBool(r.IsSubscriber),
		strconv.FormatBool(r.IsModerator),
	}
}

type YouTubeExportRecord struct {
	MessageType  string    `json:"message_type"`
	Time         time.Time `json:"time"`
	Message      string    `json:"message"`
	AuthorName   string    `json:"author_name"`
	BanType      *string   `json:"ban_type"`
	IsSubscriber bool      `json:"is_subscriber"`
	IsModerator  bool      `json:"is_moderator"`
}

func (r YouTubeExportRecord) CSVRow() []string {
	return []string{
		r.MessageType,
		r.Time.Format(time.RFC3339Nano),
		r.Message,
		r.AuthorName,
		deref(r.BanType),
		strconv.FormatBool(r.IsSubscriber),
		strconv.FormatBool(r.IsModerator),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StreamCommand drives the lifecycle manager from the command queue.
// Start takes a URL, every other action a stream id.
type StreamCommand struct {
	MessageID uuid.UUID             `json:"messageId"`
	Action    constant.StreamAction `json:"action"`
	URL       string                `json:"url,omitempty"`
	StreamID  uint                  `json:"streamId,omitempty"`
}

type ExportJobMessage struct {
	JobID              uuid.UUID               `json:"jobId"`
	StreamID           uint                    `json:"streamId"`
	Format             constant.ExportFormat   `json:"format"`
	MessageGroupIDs    []constant.MessageGroup `json:"messageGroupIds,omitempty"`
	IncludeBannedUsers bool                    `json:"includeBannedUsers"`
	Moderators         bool                    `json:"moderators"`
	Username           string                  `json:"username,omitempty"`
	Message            string                  `json:"message,omitempty"`
}

type ExportJobResponse struct {
	JobID  uuid.UUID `json:"jobId"`
	Status string    `json:"status"`
}

// MessagesQuery holds the query string of the messages and export
// endpoints. Dates and group ids are parsed by the server.
type MessagesQuery struct {
	Limit              int    `form:"limit,default=500" binding:"min=0"`
	Offset             int    `form:"offset,default=0" binding:"min=0"`
	DateFrom           string `form:"dateFrom"`
	DateTo             string `form:"dateTo"`
	MessageGroupIDs    string `form:"messageGroupIds"`
	IncludeBannedUsers bool   `form:"includeBannedUsers,default=true"`
	Moderators         bool   `form:"moderators,default=false"`
	Username           string `form:"username"`
	Message            string `form:"message"`
	Format             string `form:"format,default=json"`
}
