package model

import "time"

// ISOTimestamp formats chat timestamps with millisecond precision in UTC,
// e.g. 2024-05-01T10:04:05.123Z.
const ISOTimestamp = "2006-01-02T15:04:05.000Z07:00"

// FormatISO renders t as a chat timestamp.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOTimestamp)
}

// Chat is a single direct message.
type Chat struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	FromUserID int64  `gorm:"index:idx_chat_from;not null" json:"fromUserId"`
	ToUserID   int64  `gorm:"index:idx_chat_to;not null" json:"toUserId"`
	Message    string `gorm:"type:text;not null" json:"message"`
	Timestamp  string `gorm:"size:32;not null" json:"timestamp"`
	IsRead     bool   `gorm:"default:false" json:"isRead"`
}

// NewChat holds the client-supplied fields of a message.
type NewChat struct {
	ToUserID int64
	Message  string
}

// ChatWithUsers is a message joined with both participants.
type ChatWithUsers struct {
	Chat
	FromUser User `json:"fromUser"`
	ToUser   User `json:"toUser"`
}
