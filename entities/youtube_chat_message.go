package entities

import (
	"time"

	"chat-archive/constant"
)

// Money is the monetary payload of a paid message or sticker.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Text     string  `json:"text"`
}

type YouTubeChatMessage struct {
	ID                  uint                  `json:"id" gorm:"primaryKey"`
	MessageID           string                `json:"message_id" gorm:"type:varchar(255);index:ix_youtube_chat_message_id"`
	MessageGroupID      constant.MessageGroup `json:"message_group_id" gorm:"not null;index:ix_youtube_chat_message_group_id"`
	Timestamp           time.Time             `json:"timestamp" gorm:"not null;index:ix_youtube_chat_timestamp"`
	StreamID            uint                  `json:"stream_id" gorm:"index:ix_youtube_chat_stream_id"`
	AuthorName          string                `json:"author_name" gorm:"type:varchar(255);index:ix_youtube_chat_author_name"`
	AuthorID            string                `json:"author_id" gorm:"type:varchar(255);index:ix_youtube_chat_author_id"`
	IsModerator         bool                  `json:"is_moderator" gorm:"not null;default:false;index:ix_youtube_chat_is_moderator"`
	IsMember            bool                  `json:"is_member" gorm:"not null;default:false;index:ix_youtube_chat_is_member"`
	Message             string                `json:"message" gorm:"type:text"`
	TargetMessageID     *uint                 `json:"target_message_id" gorm:"index:ix_youtube_chat_target_message_id"`
	HeaderPrimaryText   string                `json:"header_primary_text" gorm:"type:text"`
	HeaderSecondaryText string                `json:"header_secondary_text" gorm:"type:text"`
	Money               *Money                `json:"money" gorm:"type:text;serializer:json"`
	Deleted             bool                  `json:"deleted" gorm:"not null;default:false;index:ix_youtube_chat_deleted"`
	CreatedAt           time.Time             `json:"created_at"`
}

func (YouTubeChatMessage) TableName() string {
	return "youtube_chat_messages"
}
