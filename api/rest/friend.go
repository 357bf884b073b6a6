package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/metrocity/server/middleware"
	"github.com/metrocity/server/model"
	"github.com/metrocity/server/plugin/hook"
	"github.com/metrocity/server/store"
	"go.uber.org/zap"
)

// OnlineChecker reports whether a user currently holds a live connection.
// *presence.Registry satisfies it.
type OnlineChecker interface {
	IsOnline(userID int64) bool
}

// FriendHandler handles friends, friend requests and suggestions.
type FriendHandler struct {
	store  store.Store
	hooks  *hook.HookCenter
	online OnlineChecker
	logger *zap.Logger
}

// NewFriendHandler creates a new FriendHandler.
func NewFriendHandler(s store.Store, hooks *hook.HookCenter, online OnlineChecker, logger *zap.Logger) *FriendHandler {
	return &FriendHandler{store: s, hooks: hooks, online: online, logger: logger}
}

type friendInfo struct {
	model.User
	Online bool `json:"online"`
}

// List handles GET /api/friends/:userId.
func (h *FriendHandler) List(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	friends, err := h.store.GetFriendsByUserID(c.Request.Context(), userID)
	if err != nil {
		internalError(c, h.logger, "list friends", err)
		return
	}
	result := make([]friendInfo, len(friends))
	for i, f := range friends {
		result[i] = friendInfo{User: f, Online: h.online.IsOnline(f.ID)}
	}
	c.JSON(http.StatusOK, result)
}

// Requests handles GET /api/friends/:userId/requests.
func (h *FriendHandler) Requests(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	reqs, err := h.store.GetFriendRequests(c.Request.Context(), userID)
	if err != nil {
		internalError(c, h.logger, "list friend requests", err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// Suggestions handles GET /api/friends/:userId/suggestions.
func (h *FriendHandler) Suggestions(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	users, err := h.store.GetFriendSuggestions(c.Request.Context(), userID)
	if err != nil {
		internalError(c, h.logger, "list suggestions", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// RemoveSuggestion handles DELETE /api/suggestions/:userId/:suggestionId.
func (h *FriendHandler) RemoveSuggestion(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	suggestionID, ok := int64Param(c, "suggestionId")
	if !ok {
		return
	}
	mw.SetAuditUser(c, userID)
	if err := h.store.RemoveSuggestion(c.Request.Context(), userID, suggestionID); err != nil {
		internalError(c, h.logger, "remove suggestion", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Suggestion removed"})
}

type friendActionRequest struct {
	FromUserID int64 `json:"fromUserId" binding:"required"`
	ToUserID   int64 `json:"toUserId" binding:"required"`
}

type friendAction func(ctx context.Context, fromUserID, toUserID int64) (*model.FriendActionResult, error)

// SendRequest handles POST /api/friends/request.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	h.act(c, "send friend request", false, h.store.SendFriendRequest)
}

// Accept handles POST /api/friends/accept. fromUserId is the requester,
// toUserId the user accepting.
func (h *FriendHandler) Accept(c *gin.Context) {
	h.act(c, "accept friend request", true, h.store.AcceptFriendRequest)
}

// Reject handles POST /api/friends/reject.
func (h *FriendHandler) Reject(c *gin.Context) {
	h.act(c, "reject friend request", true, h.store.RejectFriendRequest)
}

// act runs a friend-request operation. byRecipient attributes the call to
// toUserId in the audit log.
func (h *FriendHandler) act(c *gin.Context, op string, byRecipient bool, fn friendAction) {
	var req friendActionRequest
	if !bindJSON(c, &req, "") {
		return
	}
	if req.FromUserID == req.ToUserID {
		fail(c, http.StatusBadRequest, "Cannot befriend yourself")
		return
	}
	if !requireUsers(c, h.store, h.logger, req.FromUserID, req.ToUserID) {
		return
	}
	ctx := c.Request.Context()
	if byRecipient {
		mw.SetAuditUser(c, req.ToUserID)
	} else {
		mw.SetAuditUser(c, req.FromUserID)
	}
	res, err := fn(ctx, req.FromUserID, req.ToUserID)
	if err != nil {
		internalError(c, h.logger, op, err)
		return
	}
	if res.Notification != nil {
		if _, err := h.hooks.Trigger(ctx, hook.OnNotificationCreated, res.Notification); err != nil {
			h.logger.Warn("on_notification_created hook", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, res)
}

// Remove handles DELETE /api/friends/:userId/:friendId.
func (h *FriendHandler) Remove(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	friendID, ok := int64Param(c, "friendId")
	if !ok {
		return
	}
	mw.SetAuditUser(c, userID)
	n, err := h.store.RemoveFriend(c.Request.Context(), userID, friendID)
	if err != nil {
		internalError(c, h.logger, "remove friend", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Friend removed", "removed": n})
}
