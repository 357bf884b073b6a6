package model

// Notification types.
const (
	NotifyLike          = "like"
	NotifyComment       = "comment"
	NotifyFriendRequest = "friend_request"
	NotifyGeneral       = "general"
)

// Notification is addressed to UserID. FromUserID is nil for system notices.
type Notification struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64  `gorm:"index:idx_notify_user;not null" json:"userId"`
	Type       string `gorm:"size:32;not null" json:"type"`
	Content    string `gorm:"type:text;not null" json:"content"`
	FromUserID *int64 `json:"fromUserId"`
	Timestamp  string `gorm:"size:64;not null" json:"timestamp"`
	IsRead     bool   `gorm:"default:false" json:"isRead"`
}

// NotificationWithSender is a notification joined with the user that
// triggered it, when there is one.
type NotificationWithSender struct {
	Notification
	FromUser *User `json:"fromUser,omitempty"`
}
