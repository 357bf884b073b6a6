package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/metrocity/server/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on a gorm database. Tables must already be
// migrated (model.AutoMigrate).
type GormStore struct {
	db   *gorm.DB
	opts options
}

var _ Store = (*GormStore)(nil)

// NewGormStore wraps db. It does not seed; call Seed for that.
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &GormStore{db: db, opts: o}
}

// Seed inserts the startup dataset when the users table is empty.
// It reports whether anything was inserted.
func (s *GormStore) Seed(ctx context.Context) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error; err != nil {
		return false, fmt.Errorf("store: seed: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	d := model.Seed(s.opts.now())
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rows := range []interface{}{&d.Users, &d.Posts, &d.Chats, &d.Notifications, &d.Friendships} {
			if err := tx.Create(rows).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: seed: %w", err)
	}
	return true, nil
}

// first runs q.First into a new T, mapping gorm.ErrRecordNotFound to nil.
func first[T any](q *gorm.DB, op string) (*T, error) {
	var v T
	err := q.First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	return &v, nil
}

// usersByID loads the given users keyed by id. Missing ids are absent from
// the map.
func usersByID(tx *gorm.DB, ids []int64) (map[int64]model.User, error) {
	out := make(map[int64]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []model.User
	if err := tx.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// ---- Users ----

func (s *GormStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return first[model.User](s.db.WithContext(ctx).Where("id = ?", id), "get user")
}

// usersNamed loads every user whose username equals name ignoring case,
// ordered by id. Callers filter exactly in Go: MySQL's default collations
// compare case-insensitively, so SQL equality alone would not be exact.
func usersNamed(tx *gorm.DB, name, op string) ([]model.User, error) {
	var users []model.User
	if err := tx.Where("LOWER(username) = LOWER(?)", name).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	return users, nil
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	users, err := usersNamed(s.db.WithContext(ctx), username, "get user by username")
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Username == username {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (s *GormStore) GetUserByCredentials(ctx context.Context, username, studentID, password string) (*model.User, error) {
	users, err := usersNamed(s.db.WithContext(ctx), username, "get user by credentials")
	if err != nil {
		return nil, err
	}
	for i := range users {
		u := &users[i]
		if u.Username == username && u.StudentID == studentID && u.Password == password {
			return u, nil
		}
	}
	return nil, nil
}

func (s *GormStore) CreateUser(ctx context.Context, nu model.NewUser) (*model.User, error) {
	u := nu.Build(0)
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	return &u, nil
}

func (s *GormStore) UpdateUserPassword(ctx context.Context, id int64, newPassword string) error {
	err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("password", newPassword).Error
	if err != nil {
		return fmt.Errorf("store: update password: %w", err)
	}
	return nil
}

// ---- Posts ----

func (s *GormStore) GetPosts(ctx context.Context) ([]model.PostWithUser, error) {
	db := s.db.WithContext(ctx)
	var posts []model.Post
	if err := db.Order("id DESC").Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("store: get posts: %w", err)
	}
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.UserID)
	}
	owners, err := usersByID(db, ids)
	if err != nil {
		return nil, fmt.Errorf("store: get posts: %w", err)
	}
	out := make([]model.PostWithUser, 0, len(posts))
	for _, p := range posts {
		u, ok := owners[p.UserID]
		if !ok {
			continue
		}
		out = append(out, model.PostWithUser{Post: p, User: u})
	}
	return out, nil
}

func (s *GormStore) GetPost(ctx context.Context, id int64) (*model.Post, error) {
	return first[model.Post](s.db.WithContext(ctx).Where("id = ?", id), "get post")
}

func (s *GormStore) CreatePost(ctx context.Context, userID int64, np model.NewPost) (*model.Post, error) {
	p := model.Post{
		UserID:    userID,
		Content:   np.Content,
		MediaType: np.MediaType,
		MediaURL:  np.MediaURL,
		Timestamp: model.TimestampNow,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("store: create post: %w", err)
	}
	return &p, nil
}

func (s *GormStore) DeletePost(ctx context.Context, userID, postID int64) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", postID, userID).Delete(&model.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		for _, m := range []interface{}{&model.PostLike{}, &model.PostSave{}, &model.PostHide{}} {
			if err := tx.Where("post_id = ?", postID).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: delete post: %w", err)
	}
	return deleted, nil
}

func (s *GormStore) HasUserLikedPost(ctx context.Context, userID, postID int64) (bool, error) {
	if !s.opts.trackLikes {
		return false, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&model.PostLike{}).
		Where("user_id = ? AND post_id = ?", userID, postID).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("store: has liked: %w", err)
	}
	return n > 0, nil
}

func (s *GormStore) LikePost(ctx context.Context, userID, postID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if s.opts.trackLikes {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&model.PostLike{UserID: userID, PostID: postID})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
		}
		return tx.Model(&model.Post{}).Where("id = ?", postID).
			UpdateColumn("likes", gorm.Expr("likes + 1")).Error
	})
	if err != nil {
		return fmt.Errorf("store: like post: %w", err)
	}
	return nil
}

func (s *GormStore) UnlikePost(ctx context.Context, userID, postID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.opts.trackLikes {
			res := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&model.PostLike{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
		}
		return tx.Model(&model.Post{}).Where("id = ? AND likes > 0", postID).
			UpdateColumn("likes", gorm.Expr("likes - 1")).Error
	})
	if err != nil {
		return fmt.Errorf("store: unlike post: %w", err)
	}
	return nil
}

// insertIfPost creates row when the post exists, ignoring duplicates. It
// reports whether a row was inserted.
func insertIfPost(tx *gorm.DB, postID int64, row interface{}) (bool, error) {
	var n int64
	if err := tx.Model(&model.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) SavePost(ctx context.Context, userID, postID int64) (bool, error) {
	var saved bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		saved, err = insertIfPost(tx, postID, &model.PostSave{UserID: userID, PostID: postID})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("store: save post: %w", err)
	}
	return saved, nil
}

func (s *GormStore) UnsavePost(ctx context.Context, userID, postID int64) (bool, error) {
	res := s.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).Delete(&model.PostSave{})
	if res.Error != nil {
		return false, fmt.Errorf("store: unsave post: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) GetSavedPosts(ctx context.Context, userID int64) ([]model.PostWithUser, error) {
	db := s.db.WithContext(ctx)
	var posts []model.Post
	err := db.Where("id IN (?)", db.Model(&model.PostSave{}).Select("post_id").Where("user_id = ?", userID)).
		Order("id DESC").Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("store: get saved posts: %w", err)
	}
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.UserID)
	}
	owners, err := usersByID(db, ids)
	if err != nil {
		return nil, fmt.Errorf("store: get saved posts: %w", err)
	}
	out := make([]model.PostWithUser, 0, len(posts))
	for _, p := range posts {
		if u, ok := owners[p.UserID]; ok {
			out = append(out, model.PostWithUser{Post: p, User: u})
		}
	}
	return out, nil
}

func (s *GormStore) HidePost(ctx context.Context, userID, postID int64) (bool, error) {
	var hidden bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		hidden, err = insertIfPost(tx, postID, &model.PostHide{UserID: userID, PostID: postID})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("store: hide post: %w", err)
	}
	return hidden, nil
}

func (s *GormStore) GetHiddenPostIDs(ctx context.Context, userID int64) ([]int64, error) {
	ids := []int64{}
	err := s.db.WithContext(ctx).Model(&model.PostHide{}).
		Where("user_id = ?", userID).Order("post_id").Pluck("post_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("store: get hidden posts: %w", err)
	}
	return ids, nil
}

// ---- Chats ----

func (s *GormStore) GetChatsByUserID(ctx context.Context, userID int64) ([]model.ChatWithUsers, error) {
	db := s.db.WithContext(ctx)
	var chats []model.Chat
	err := db.Where("from_user_id = ? OR to_user_id = ?", userID, userID).
		Order("id").Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("store: get chats: %w", err)
	}
	ids := make([]int64, 0, 2*len(chats))
	for _, c := range chats {
		ids = append(ids, c.FromUserID, c.ToUserID)
	}
	users, err := usersByID(db, ids)
	if err != nil {
		return nil, fmt.Errorf("store: get chats: %w", err)
	}
	out := make([]model.ChatWithUsers, 0, len(chats))
	for _, c := range chats {
		from, ok1 := users[c.FromUserID]
		to, ok2 := users[c.ToUserID]
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, model.ChatWithUsers{Chat: c, FromUser: from, ToUser: to})
	}
	return out, nil
}

func (s *GormStore) CreateChat(ctx context.Context, fromUserID int64, nc model.NewChat) (*model.Chat, error) {
	c := model.Chat{
		FromUserID: fromUserID,
		ToUserID:   nc.ToUserID,
		Message:    nc.Message,
		Timestamp:  model.FormatISO(s.opts.now()),
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("store: create chat: %w", err)
	}
	return &c, nil
}

func (s *GormStore) MarkChatsRead(ctx context.Context, userID, partnerID int64) (int, error) {
	res := s.db.WithContext(ctx).Model(&model.Chat{}).
		Where("to_user_id = ? AND from_user_id = ? AND is_read = ?", userID, partnerID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("store: mark chats read: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// ---- Notifications ----

func (s *GormStore) GetNotificationsByUserID(ctx context.Context, userID int64) ([]model.NotificationWithSender, error) {
	db := s.db.WithContext(ctx)
	var rows []model.Notification
	if err := db.Where("user_id = ?", userID).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: get notifications: %w", err)
	}
	var ids []int64
	for _, n := range rows {
		if n.FromUserID != nil {
			ids = append(ids, *n.FromUserID)
		}
	}
	senders, err := usersByID(db, ids)
	if err != nil {
		return nil, fmt.Errorf("store: get notifications: %w", err)
	}
	out := make([]model.NotificationWithSender, 0, len(rows))
	for _, n := range rows {
		item := model.NotificationWithSender{Notification: n}
		if n.FromUserID != nil {
			if u, ok := senders[*n.FromUserID]; ok {
				item.FromUser = &u
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func createNotification(tx *gorm.DB, userID int64, typ, content string, fromUserID *int64) (*model.Notification, error) {
	n := model.Notification{
		UserID:     userID,
		Type:       typ,
		Content:    content,
		FromUserID: fromUserID,
		Timestamp:  model.TimestampNow,
	}
	if err := tx.Create(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *GormStore) CreateNotification(ctx context.Context, userID int64, typ, content string, fromUserID *int64) (*model.Notification, error) {
	n, err := createNotification(s.db.WithContext(ctx), userID, typ, content, fromUserID)
	if err != nil {
		return nil, fmt.Errorf("store: create notification: %w", err)
	}
	return n, nil
}

func (s *GormStore) MarkNotificationRead(ctx context.Context, userID, notificationID int64) (bool, error) {
	db := s.db.WithContext(ctx)
	n, err := first[model.Notification](db.Where("id = ? AND user_id = ?", notificationID, userID), "mark notification read")
	if err != nil || n == nil {
		return false, err
	}
	if err := db.Model(n).Update("is_read", true).Error; err != nil {
		return false, fmt.Errorf("store: mark notification read: %w", err)
	}
	return true, nil
}

// ---- Friends ----

func connected(tx *gorm.DB, a, b int64) (bool, error) {
	var n int64
	err := tx.Model(&model.Friendship{}).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

func pendingRequests(tx *gorm.DB, from, to int64) *gorm.DB {
	return tx.Model(&model.Notification{}).
		Where("type = ? AND user_id = ? AND from_user_id = ? AND is_read = ?", model.NotifyFriendRequest, to, from, false)
}

func findUser(tx *gorm.DB, id int64) (*model.User, error) {
	var u model.User
	err := tx.Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *GormStore) GetFriendsByUserID(ctx context.Context, userID int64) ([]model.User, error) {
	db := s.db.WithContext(ctx)
	var edges []model.Friendship
	if err := db.Where("user_id = ?", userID).Order("id").Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("store: get friends: %w", err)
	}
	ids := make([]int64, 0, len(edges))
	for _, f := range edges {
		ids = append(ids, f.FriendID)
	}
	users, err := usersByID(db, ids)
	if err != nil {
		return nil, fmt.Errorf("store: get friends: %w", err)
	}
	out := make([]model.User, 0, len(edges))
	for _, f := range edges {
		if u, ok := users[f.FriendID]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *GormStore) SendFriendRequest(ctx context.Context, fromUserID, toUserID int64) (*model.FriendActionResult, error) {
	var result *model.FriendActionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := connected(tx, fromUserID, toUserID)
		if err != nil {
			return err
		}
		if ok {
			result = &model.FriendActionResult{Message: MsgAlreadyFriends}
			return nil
		}
		var pending int64
		if err := pendingRequests(tx, fromUserID, toUserID).Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			result = &model.FriendActionResult{Message: MsgRequestAlreadySent}
			return nil
		}
		from, err := findUser(tx, fromUserID)
		if err != nil {
			return err
		}
		sender := fromUserID
		n, err := createNotification(tx, toUserID, model.NotifyFriendRequest, sentRequestText(from), &sender)
		if err != nil {
			return err
		}
		result = &model.FriendActionResult{Message: MsgRequestSent, Changed: true, Notification: n}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: send friend request: %w", err)
	}
	return result, nil
}

func (s *GormStore) AcceptFriendRequest(ctx context.Context, fromUserID, toUserID int64) (*model.FriendActionResult, error) {
	var result *model.FriendActionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := connected(tx, fromUserID, toUserID)
		if err != nil {
			return err
		}
		if !ok {
			edges := []model.Friendship{
				{UserID: toUserID, FriendID: fromUserID},
				{UserID: fromUserID, FriendID: toUserID},
			}
			if err := tx.Create(&edges).Error; err != nil {
				return err
			}
		}
		if err := pendingRequests(tx, fromUserID, toUserID).Update("is_read", true).Error; err != nil {
			return err
		}
		to, err := findUser(tx, toUserID)
		if err != nil {
			return err
		}
		sender := toUserID
		n, err := createNotification(tx, fromUserID, model.NotifyGeneral, acceptedText(to), &sender)
		if err != nil {
			return err
		}
		result = &model.FriendActionResult{Message: MsgRequestAccepted, Changed: !ok, Notification: n}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: accept friend request: %w", err)
	}
	return result, nil
}

func (s *GormStore) RejectFriendRequest(ctx context.Context, fromUserID, toUserID int64) (*model.FriendActionResult, error) {
	var result *model.FriendActionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := pendingRequests(tx, fromUserID, toUserID).Update("is_read", true).Error; err != nil {
			return err
		}
		to, err := findUser(tx, toUserID)
		if err != nil {
			return err
		}
		sender := toUserID
		n, err := createNotification(tx, fromUserID, model.NotifyGeneral, declinedText(to), &sender)
		if err != nil {
			return err
		}
		result = &model.FriendActionResult{Message: MsgRequestRejected, Changed: true, Notification: n}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: reject friend request: %w", err)
	}
	return result, nil
}

func (s *GormStore) RemoveFriend(ctx context.Context, userID, friendID int64) (int, error) {
	res := s.db.WithContext(ctx).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", userID, friendID, friendID, userID).
		Delete(&model.Friendship{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: remove friend: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) GetFriendSuggestions(ctx context.Context, userID int64) ([]model.User, error) {
	db := s.db.WithContext(ctx)
	friends := db.Model(&model.Friendship{}).Select("friend_id").Where("user_id = ?", userID)
	var out []model.User
	err := db.Where("id <> ? AND id NOT IN (?)", userID, friends).
		Order("id").Limit(MaxSuggestions).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: get suggestions: %w", err)
	}
	if out == nil {
		out = []model.User{}
	}
	return out, nil
}

func (s *GormStore) GetFriendRequests(ctx context.Context, userID int64) ([]model.FriendRequest, error) {
	db := s.db.WithContext(ctx)
	var rows []model.Notification
	err := db.Where("user_id = ? AND type = ? AND is_read = ? AND from_user_id IS NOT NULL",
		userID, model.NotifyFriendRequest, false).Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: get friend requests: %w", err)
	}
	ids := make([]int64, 0, len(rows))
	for _, n := range rows {
		ids = append(ids, *n.FromUserID)
	}
	senders, err := usersByID(db, ids)
	if err != nil {
		return nil, fmt.Errorf("store: get friend requests: %w", err)
	}
	out := make([]model.FriendRequest, 0, len(rows))
	for _, n := range rows {
		u, ok := senders[*n.FromUserID]
		if !ok {
			continue
		}
		out = append(out, model.FriendRequest{
			ID:         n.ID,
			FromUserID: u.ID,
			ToUserID:   userID,
			Status:     model.FriendRequestPending,
			Timestamp:  n.Timestamp,
			FromUser:   u,
		})
	}
	return out, nil
}

func (s *GormStore) RemoveSuggestion(_ context.Context, _, _ int64) error {
	return nil
}

func (s *GormStore) Stats(ctx context.Context) (model.Stats, error) {
	db := s.db.WithContext(ctx)
	var st model.Stats
	for _, c := range []struct {
		table interface{}
		dst   *int64
	}{
		{&model.User{}, &st.Users},
		{&model.Post{}, &st.Posts},
		{&model.Chat{}, &st.Chats},
		{&model.Notification{}, &st.Notifications},
		{&model.Friendship{}, &st.Friendships},
	} {
		if err := db.Model(c.table).Count(c.dst).Error; err != nil {
			return model.Stats{}, fmt.Errorf("store: stats: %w", err)
		}
	}
	return st, nil
}
