package store

import (
	"context"
	"sort"
	"sync"

	"github.com/metrocity/server/model"
)

type userPost struct {
	userID, postID int64
}

type counters struct {
	user, post, chat, notification, friendship int64
}

// MemStore keeps all entities in process memory. One RWMutex guards every
// map and counter, so each operation is atomic with respect to the others.
type MemStore struct {
	mu            sync.RWMutex
	opts          options
	users         map[int64]model.User
	posts         map[int64]model.Post
	chats         map[int64]model.Chat
	notifications map[int64]model.Notification
	friendships   map[int64]model.Friendship
	likes         map[userPost]struct{}
	saves         map[userPost]struct{}
	hides         map[userPost]struct{}
	next          counters
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates a MemStore, seeded unless WithoutSeed is given.
func NewMemStore(opts ...Option) *MemStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &MemStore{
		opts:          o,
		users:         make(map[int64]model.User),
		posts:         make(map[int64]model.Post),
		chats:         make(map[int64]model.Chat),
		notifications: make(map[int64]model.Notification),
		friendships:   make(map[int64]model.Friendship),
		likes:         make(map[userPost]struct{}),
		saves:         make(map[userPost]struct{}),
		hides:         make(map[userPost]struct{}),
		next:          counters{1, 1, 1, 1, 1},
	}
	if o.seed {
		s.load(model.Seed(o.now()))
	}
	return s
}

func (s *MemStore) load(d model.SeedData) {
	for _, u := range d.Users {
		s.users[u.ID] = u
		s.next.user = max(s.next.user, u.ID+1)
	}
	for _, p := range d.Posts {
		s.posts[p.ID] = p
		s.next.post = max(s.next.post, p.ID+1)
	}
	for _, c := range d.Chats {
		s.chats[c.ID] = c
		s.next.chat = max(s.next.chat, c.ID+1)
	}
	for _, n := range d.Notifications {
		s.notifications[n.ID] = n
		s.next.notification = max(s.next.notification, n.ID+1)
	}
	for _, f := range d.Friendships {
		s.friendships[f.ID] = f
		s.next.friendship = max(s.next.friendship, f.ID+1)
	}
}

func sortedKeys[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemStore) userPtr(id int64) *model.User {
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	return &u
}

// ---- Users ----

func (s *MemStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userPtr(id), nil
}

func (s *MemStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range sortedKeys(s.users) {
		if s.users[id].Username == username {
			return s.userPtr(id), nil
		}
	}
	return nil, nil
}

func (s *MemStore) GetUserByCredentials(_ context.Context, username, studentID, password string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range sortedKeys(s.users) {
		u := s.users[id]
		if u.Username == username && u.StudentID == studentID && u.Password == password {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *MemStore) CreateUser(_ context.Context, nu model.NewUser) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := nu.Build(s.next.user)
	s.next.user++
	s.users[u.ID] = u
	return &u, nil
}

func (s *MemStore) UpdateUserPassword(_ context.Context, id int64, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Password = newPassword
		s.users[id] = u
	}
	return nil
}

// ---- Posts ----

func (s *MemStore) GetPosts(_ context.Context) ([]model.PostWithUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := sortedKeys(s.posts)
	out := make([]model.PostWithUser, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		p := s.posts[ids[i]]
		owner, ok := s.users[p.UserID]
		if !ok {
			continue
		}
		out = append(out, model.PostWithUser{Post: p, User: owner})
	}
	return out, nil
}

func (s *MemStore) GetPost(_ context.Context, id int64) (*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemStore) CreatePost(_ context.Context, userID int64, np model.NewPost) (*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := model.Post{
		ID:        s.next.post,
		UserID:    userID,
		Content:   np.Content,
		MediaType: np.MediaType,
		MediaURL:  np.MediaURL,
		Timestamp: model.TimestampNow,
	}
	s.next.post++
	s.posts[p.ID] = p
	return &p, nil
}

func (s *MemStore) DeletePost(_ context.Context, userID, postID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok || p.UserID != userID {
		return false, nil
	}
	delete(s.posts, postID)
	for _, set := range []map[userPost]struct{}{s.likes, s.saves, s.hides} {
		for k := range set {
			if k.postID == postID {
				delete(set, k)
			}
		}
	}
	return true, nil
}

func (s *MemStore) HasUserLikedPost(_ context.Context, userID, postID int64) (bool, error) {
	if !s.opts.trackLikes {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.likes[userPost{userID, postID}]
	return ok, nil
}

func (s *MemStore) LikePost(_ context.Context, userID, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return nil
	}
	if s.opts.trackLikes {
		k := userPost{userID, postID}
		if _, liked := s.likes[k]; liked {
			return nil
		}
		s.likes[k] = struct{}{}
	}
	p.Likes++
	s.posts[postID] = p
	return nil
}

func (s *MemStore) UnlikePost(_ context.Context, userID, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return nil
	}
	if s.opts.trackLikes {
		k := userPost{userID, postID}
		if _, liked := s.likes[k]; !liked {
			return nil
		}
		delete(s.likes, k)
	}
	if p.Likes > 0 {
		p.Likes--
	}
	s.posts[postID] = p
	return nil
}

// addTo inserts k into set when the post exists and k is not yet there.
func (s *MemStore) addTo(set map[userPost]struct{}, k userPost) bool {
	if _, ok := s.posts[k.postID]; !ok {
		return false
	}
	if _, ok := set[k]; ok {
		return false
	}
	set[k] = struct{}{}
	return true
}

func (s *MemStore) SavePost(_ context.Context, userID, postID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTo(s.saves, userPost{userID, postID}), nil
}

func (s *MemStore) UnsavePost(_ context.Context, userID, postID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userPost{userID, postID}
	if _, ok := s.saves[k]; !ok {
		return false, nil
	}
	delete(s.saves, k)
	return true, nil
}

// GetSavedPosts returns the user's saved posts joined with their owners,
// newest first.
func (s *MemStore) GetSavedPosts(_ context.Context, userID int64) ([]model.PostWithUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.PostWithUser{}
	ids := sortedKeys(s.posts)
	for i := len(ids) - 1; i >= 0; i-- {
		p := s.posts[ids[i]]
		if _, ok := s.saves[userPost{userID, p.ID}]; !ok {
			continue
		}
		owner, ok := s.users[p.UserID]
		if !ok {
			continue
		}
		out = append(out, model.PostWithUser{Post: p, User: owner})
	}
	return out, nil
}

func (s *MemStore) HidePost(_ context.Context, userID, postID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTo(s.hides, userPost{userID, postID}), nil
}

func (s *MemStore) GetHiddenPostIDs(_ context.Context, userID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := []int64{}
	for k := range s.hides {
		if k.userID == userID {
			ids = append(ids, k.postID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ---- Chats ----

func (s *MemStore) GetChatsByUserID(_ context.Context, userID int64) ([]model.ChatWithUsers, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.ChatWithUsers{}
	for _, id := range sortedKeys(s.chats) {
		c := s.chats[id]
		if c.FromUserID != userID && c.ToUserID != userID {
			continue
		}
		from, ok1 := s.users[c.FromUserID]
		to, ok2 := s.users[c.ToUserID]
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, model.ChatWithUsers{Chat: c, FromUser: from, ToUser: to})
	}
	return out, nil
}

func (s *MemStore) CreateChat(_ context.Context, fromUserID int64, nc model.NewChat) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := model.Chat{
		ID:         s.next.chat,
		FromUserID: fromUserID,
		ToUserID:   nc.ToUserID,
		Message:    nc.Message,
		Timestamp:  model.FormatISO(s.opts.now()),
	}
	s.next.chat++
	s.chats[c.ID] = c
	return &c, nil
}

func (s *MemStore) MarkChatsRead(_ context.Context, userID, partnerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.chats {
		if c.ToUserID == userID && c.FromUserID == partnerID && !c.IsRead {
			c.IsRead = true
			s.chats[id] = c
			n++
		}
	}
	return n, nil
}

// ---- Notifications ----

func (s *MemStore) GetNotificationsByUserID(_ context.Context, userID int64) ([]model.NotificationWithSender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := sortedKeys(s.notifications)
	out := []model.NotificationWithSender{}
	for i := len(ids) - 1; i >= 0; i-- {
		n := s.notifications[ids[i]]
		if n.UserID != userID {
			continue
		}
		item := model.NotificationWithSender{Notification: n}
		if n.FromUserID != nil {
			item.FromUser = s.userPtr(*n.FromUserID)
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *MemStore) createNotification(userID int64, typ, content string, fromUserID *int64) *model.Notification {
	n := model.Notification{
		ID:         s.next.notification,
		UserID:     userID,
		Type:       typ,
		Content:    content,
		FromUserID: fromUserID,
		Timestamp:  model.TimestampNow,
	}
	s.next.notification++
	s.notifications[n.ID] = n
	return &n
}

func (s *MemStore) CreateNotification(_ context.Context, userID int64, typ, content string, fromUserID *int64) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createNotification(userID, typ, content, fromUserID), nil
}

func (s *MemStore) MarkNotificationRead(_ context.Context, userID, notificationID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[notificationID]
	if !ok || n.UserID != userID {
		return false, nil
	}
	n.IsRead = true
	s.notifications[notificationID] = n
	return true, nil
}

// ---- Friends ----

func (s *MemStore) connected(a, b int64) bool {
	for _, f := range s.friendships {
		if (f.UserID == a && f.FriendID == b) || (f.UserID == b && f.FriendID == a) {
			return true
		}
	}
	return false
}

func isRequest(n model.Notification, from, to int64) bool {
	return n.Type == model.NotifyFriendRequest && n.UserID == to &&
		n.FromUserID != nil && *n.FromUserID == from
}

func (s *MemStore) markRequestsRead(from, to int64) {
	for id, n := range s.notifications {
		if isRequest(n, from, to) && !n.IsRead {
			n.IsRead = true
			s.notifications[id] = n
		}
	}
}

func (s *MemStore) addEdge(userID, friendID int64) {
	f := model.Friendship{ID: s.next.friendship, UserID: userID, FriendID: friendID}
	s.next.friendship++
	s.friendships[f.ID] = f
}

func (s *MemStore) GetFriendsByUserID(_ context.Context, userID int64) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.User{}
	for _, id := range sortedKeys(s.friendships) {
		f := s.friendships[id]
		if f.UserID != userID {
			continue
		}
		if u, ok := s.users[f.FriendID]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *MemStore) SendFriendRequest(_ context.Context, fromUserID, toUserID int64) (*model.FriendActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected(fromUserID, toUserID) {
		return &model.FriendActionResult{Message: MsgAlreadyFriends}, nil
	}
	for _, n := range s.notifications {
		if isRequest(n, fromUserID, toUserID) && !n.IsRead {
			return &model.FriendActionResult{Message: MsgRequestAlreadySent}, nil
		}
	}
	from := fromUserID
	n := s.createNotification(toUserID, model.NotifyFriendRequest, sentRequestText(s.userPtr(fromUserID)), &from)
	return &model.FriendActionResult{Message: MsgRequestSent, Changed: true, Notification: n}, nil
}

func (s *MemStore) AcceptFriendRequest(_ context.Context, fromUserID, toUserID int64) (*model.FriendActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	if !s.connected(fromUserID, toUserID) {
		s.addEdge(toUserID, fromUserID)
		s.addEdge(fromUserID, toUserID)
		changed = true
	}
	s.markRequestsRead(fromUserID, toUserID)
	sender := toUserID
	n := s.createNotification(fromUserID, model.NotifyGeneral, acceptedText(s.userPtr(toUserID)), &sender)
	return &model.FriendActionResult{Message: MsgRequestAccepted, Changed: changed, Notification: n}, nil
}

func (s *MemStore) RejectFriendRequest(_ context.Context, fromUserID, toUserID int64) (*model.FriendActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markRequestsRead(fromUserID, toUserID)
	sender := toUserID
	n := s.createNotification(fromUserID, model.NotifyGeneral, declinedText(s.userPtr(toUserID)), &sender)
	return &model.FriendActionResult{Message: MsgRequestRejected, Changed: true, Notification: n}, nil
}

func (s *MemStore) RemoveFriend(_ context.Context, userID, friendID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, f := range s.friendships {
		if (f.UserID == userID && f.FriendID == friendID) || (f.UserID == friendID && f.FriendID == userID) {
			delete(s.friendships, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemStore) GetFriendSuggestions(_ context.Context, userID int64) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	friends := map[int64]bool{}
	for _, f := range s.friendships {
		if f.UserID == userID {
			friends[f.FriendID] = true
		}
	}
	out := []model.User{}
	for _, id := range sortedKeys(s.users) {
		if id == userID || friends[id] {
			continue
		}
		out = append(out, s.users[id])
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out, nil
}

func (s *MemStore) GetFriendRequests(_ context.Context, userID int64) ([]model.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.FriendRequest{}
	for _, id := range sortedKeys(s.notifications) {
		n := s.notifications[id]
		if n.UserID != userID || n.Type != model.NotifyFriendRequest || n.IsRead || n.FromUserID == nil {
			continue
		}
		sender, ok := s.users[*n.FromUserID]
		if !ok {
			continue
		}
		out = append(out, model.FriendRequest{
			ID:         n.ID,
			FromUserID: sender.ID,
			ToUserID:   userID,
			Status:     model.FriendRequestPending,
			Timestamp:  n.Timestamp,
			FromUser:   sender,
		})
	}
	return out, nil
}

// RemoveSuggestion is accepted and ignored; suggestions are recomputed on
// every read.
func (s *MemStore) RemoveSuggestion(_ context.Context, _, _ int64) error {
	return nil
}

func (s *MemStore) Stats(_ context.Context) (model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.Stats{
		Users:         int64(len(s.users)),
		Posts:         int64(len(s.posts)),
		Chats:         int64(len(s.chats)),
		Notifications: int64(len(s.notifications)),
		Friendships:   int64(len(s.friendships)),
	}, nil
}
