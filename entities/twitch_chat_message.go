package entities

import (
	"time"

	"chat-archive/constant"
)

type TwitchChatMessage struct {
	ID                uint                  `json:"id" gorm:"primaryKey"`
	MessageID         string                `json:"message_id" gorm:"type:varchar(255)"`
	MessageGroupID    constant.MessageGroup `json:"message_group_id" gorm:"not null;index:ix_twitch_chat_message_group_id"`
	Timestamp         time.Time             `json:"timestamp" gorm:"not null;index:ix_twitch_chat_timestamp"`
	StreamID          uint                  `json:"stream_id" gorm:"index:ix_twitch_chat_stream_id"`
	AuthorName        string                `json:"author_name" gorm:"type:varchar(255);index:ix_twitch_chat_author_name"`
	AuthorID          string                `json:"author_id" gorm:"type:varchar(255)"`
	AuthorDisplayName string                `json:"author_display_name" gorm:"type:varchar(255);index:ix_twitch_chat_author_display_name"`
	IsModerator       bool                  `json:"is_moderator" gorm:"not null;default:false;index:ix_twitch_chat_is_moderator"`
	IsSubscriber      bool                  `json:"is_subscriber" gorm:"not null;default:false"`
	Colour            string                `json:"colour" gorm:"type:varchar(32)"`
	Message           string                `json:"message" gorm:"type:text"`
	BanDuration       *int                  `json:"ban_duration"`
	BanType           *string               `json:"ban_type" gorm:"type:varchar(20)"`
	CumulativeMonths  *int                  `json:"cumulative_months"`
	SystemMessage     *string               `json:"system_message" gorm:"type:text"`
	CreatedAt         time.Time             `json:"created_at"`
}

func (TwitchChatMessage) TableName() string {
	return "twitch_chat_messages"
}
