package presence

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry tracks which users currently hold a live session. One session
// per user; a new connection displaces the old one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	logger   *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		logger:   logger,
	}
}

// Register adds s, closing any previous session for the same user.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[s.UserID]; ok && old != s {
		old.Close()
		r.logger.Info("duplicate session displaced", zap.Int64("user_id", s.UserID))
	}
	r.sessions[s.UserID] = s
	r.logger.Info("chat session registered", zap.Int64("user_id", s.UserID))
}

// Unregister removes s if it is still the user's current session. A session
// that was already displaced leaves its successor in place.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.UserID]; ok && cur == s {
		delete(r.sessions, s.UserID)
		r.logger.Info("chat session unregistered", zap.Int64("user_id", s.UserID))
	}
}

// Get returns the session for userID, or nil.
func (r *Registry) Get(userID int64) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[userID]
}

// IsOnline reports whether userID is connected.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// Count returns the number of connected users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// OnlineIDs returns connected user ids in ascending order.
func (r *Registry) OnlineIDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SendTo queues pkt for userID. It reports false when the user is offline
// or the packet was dropped.
func (r *Registry) SendTo(userID int64, pkt *Packet) bool {
	s := r.Get(userID)
	if s == nil {
		return false
	}
	return s.Send(pkt)
}

// CloseAll closes every session and waits up to timeout for their read
// loops to unregister them.
func (r *Registry) CloseAll(timeout time.Duration) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	r.logger.Info("closing all chat sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.Count() == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
