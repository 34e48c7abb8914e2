package entities

import (
	"time"

	"chat-archive/constant"
)

type Stream struct {
	ID                   uint                    `json:"id" gorm:"primaryKey"`
	URL                  string                  `json:"url" gorm:"type:varchar(2048);not null;index:idx_streams_url"`
	Title                *string                 `json:"title" gorm:"type:text"`
	NativeID             *string                 `json:"stream_id" gorm:"column:stream_id;type:varchar(255)"`
	Platform             constant.Platform       `json:"platform" gorm:"not null"`
	Status               *string                 `json:"status" gorm:"type:varchar(20)"`
	DownloadStatus       constant.DownloadStatus `json:"download_status" gorm:"type:varchar(20);not null;index:idx_streams_download_status"`
	Error                *string                 `json:"error" gorm:"type:text"`
	Duration             *float64                `json:"duration"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
	ResumeTimestamp      *time.Time              `json:"resume_timestamp"`
	LastMessageTimestamp *time.Time              `json:"last_message_timestamp"`
	MessageCount         int64                   `json:"message_count" gorm:"not null;default:0"`
}

func (Stream) TableName() string {
	return "streams"
}
