// Package store owns every social entity and the relationships between them.
//
// Two implementations share one contract: MemStore keeps everything in
// process memory and is the default; GormStore persists to sqlite or mysql.
// Absence is reported as a nil result or an empty slice, never as an error.
// Errors are reserved for backend failures.
package store

import (
	"context"
	"time"

	"github.com/metrocity/server/model"
)

// Informational results of friend-request operations.
const (
	MsgAlreadyFriends     = "Already friends"
	MsgRequestAlreadySent = "Friend request already sent"
	MsgRequestSent        = "Friend request sent"
	MsgRequestAccepted    = "Friend request accepted"
	MsgRequestRejected    = "Friend request rejected"
)

// Store is the social data store.
type Store interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByCredentials(ctx context.Context, username, studentID, password string) (*model.User, error)
	CreateUser(ctx context.Context, u model.NewUser) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id int64, newPassword string) error

	GetPosts(ctx context.Context) ([]model.PostWithUser, error)
	GetPost(ctx context.Context, id int64) (*model.Post, error)
	CreatePost(ctx context.Context, userID int64, p model.NewPost) (*model.Post, error)
	DeletePost(ctx context.Context, userID, postID int64) (bool, error)
	HasUserLikedPost(ctx context.Context, userID, postID int64) (bool, error)
	LikePost(ctx context.Context, userID, postID int64) error
	UnlikePost(ctx context.Context, userID, postID int64) error
	SavePost(ctx context.Context, userID, postID int64) (bool, error)
	UnsavePost(ctx context.Context, userID, postID int64) (bool, error)
	GetSavedPosts(ctx context.Context, userID int64) ([]model.PostWithUser, error)
	HidePost(ctx context.Context, userID, postID int64) (bool, error)
	GetHiddenPostIDs(ctx context.Context, userID int64) ([]int64, error)

	GetChatsByUserID(ctx context.Context, userID int64) ([]model.ChatWithUsers, error)
	CreateChat(ctx context.Context, fromUserID int64, c model.NewChat) (*model.Chat, error)
	MarkChatsRead(ctx context.Context, userID, partnerID int64) (int, error)

	GetNotificationsByUserID(ctx context.Context, userID int64) ([]model.NotificationWithSender, error)
	CreateNotification(ctx context.Context, userID int64, typ, content string, fromUserID *int64) (*model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID int64) (bool, error)

	GetFriendsByUserID(ctx context.Context, userID int64) ([]model.User, error)
	SendFriendRequest(ctx context.Context, fromUserID, toUserID int64) (*model.FriendActionResult, error)
	AcceptFriendRequest(ctx context.Context, fromUserID, toUserID int64) (*model.FriendActionResult, error)
	RejectFriendRequest(ctx context.Context, fromUserID, toUserID int64) (*model.FriendActionResult, error)
	RemoveFriend(ctx context.Context, userID, friendID int64) (int, error)
	GetFriendSuggestions(ctx context.Context, userID int64) ([]model.User, error)
	GetFriendRequests(ctx context.Context, userID int64) ([]model.FriendRequest, error)
	RemoveSuggestion(ctx context.Context, userID, suggestionID int64) error

	Stats(ctx context.Context) (model.Stats, error)
}

// MaxSuggestions caps GetFriendSuggestions.
const MaxSuggestions = 5

// Option configures a store.
type Option func(*options)

type options struct {
	now        func() time.Time
	trackLikes bool
	seed       bool
}

func defaultOptions() options {
	return options{now: time.Now, seed: true}
}

// WithClock overrides the clock used for chat timestamps and seed data.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLikeTracking records who liked which post so a second like from the
// same user is ignored and HasUserLikedPost reports the truth. Off by
// default: every like call increments the counter.
func WithLikeTracking(on bool) Option {
	return func(o *options) { o.trackLikes = on }
}

// WithoutSeed starts a MemStore empty.
func WithoutSeed() Option {
	return func(o *options) { o.seed = false }
}

// displayName is the name used in the text of friend notifications.
func displayName(u *model.User) string {
	if u == nil {
		return "Someone"
	}
	return u.FullName
}

func sentRequestText(from *model.User) string {
	return displayName(from) + " sent you a friend request"
}

func acceptedText(to *model.User) string {
	return displayName(to) + " accepted your friend request"
}

func declinedText(to *model.User) string {
	return displayName(to) + " declined your friend request"
}
