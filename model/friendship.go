package model

// Friendship is one directed friend edge. A mutual friendship is stored as
// two rows, UserID→FriendID and FriendID→UserID.
type Friendship struct {
	ID       int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   int64 `gorm:"index:idx_friendship;not null" json:"userId"`
	FriendID int64 `gorm:"index:idx_friendship;not null" json:"friendId"`
}

// FriendRequestPending is the only status a listed request can have; read
// requests are no longer listed.
const FriendRequestPending = "pending"

// FriendRequest is a pending friend_request notification resolved to its sender.
type FriendRequest struct {
	ID         int64  `json:"id"`
	FromUserID int64  `json:"fromUserId"`
	ToUserID   int64  `json:"toUserId"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	FromUser   User   `json:"fromUser"`
}

// FriendActionResult reports the outcome of a friend-request operation.
// Changed is false when the call was an informational no-op.
// Notification is the notice the operation emitted, if any.
type FriendActionResult struct {
	Message      string        `json:"message"`
	Changed      bool          `json:"changed"`
	Notification *Notification `json:"-"`
}

// Stats counts the rows of every entity.
type Stats struct {
	Users         int64 `json:"users"`
	Posts         int64 `json:"posts"`
	Chats         int64 `json:"chats"`
	Notifications int64 `json:"notifications"`
	Friendships   int64 `json:"friendships"`
}
