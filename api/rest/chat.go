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

// ChatHandler handles direct messages.
type ChatHandler struct {
	store  store.Store
	hooks  *hook.HookCenter
	logger *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(s store.Store, hooks *hook.HookCenter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{store: s, hooks: hooks, logger: logger}
}

// List handles GET /api/chats/:userId.
func (h *ChatHandler) List(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	chats, err := h.store.GetChatsByUserID(c.Request.Context(), userID)
	if err != nil {
		internalError(c, h.logger, "list chats", err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

type createChatRequest struct {
	FromUserID int64  `json:"fromUserId" binding:"required"`
	ToUserID   int64  `json:"toUserId" binding:"required"`
	Message    string `json:"message" binding:"required"`
}

// Create handles POST /api/chats.
func (h *ChatHandler) Create(c *gin.Context) {
	var req createChatRequest
	if !bindJSON(c, &req, "") {
		return
	}
	ctx := c.Request.Context()
	if !requireUsers(c, h.store, h.logger, req.FromUserID, req.ToUserID) {
		return
	}
	mw.SetAuditUser(c, req.FromUserID)
	chat, err := SendChat(ctx, h.store, h.hooks, h.logger, req.FromUserID, model.NewChat{ToUserID: req.ToUserID, Message: req.Message})
	if err != nil {
		internalError(c, h.logger, "create chat", err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// SendChat stores a message and fires OnChatSend. Hook failures do not
// undo the stored message.
func SendChat(ctx context.Context, s store.Store, hooks *hook.HookCenter, logger *zap.Logger, fromUserID int64, msg model.NewChat) (*model.Chat, error) {
	chat, err := s.CreateChat(ctx, fromUserID, msg)
	if err != nil {
		return nil, err
	}
	if _, err := hooks.Trigger(ctx, hook.OnChatSend, chat); err != nil {
		logger.Warn("on_chat_send hook", zap.Int64("chat_id", chat.ID), zap.Error(err))
	}
	return chat, nil
}

type markChatsReadRequest struct {
	PartnerID int64 `json:"partnerId" binding:"required"`
}

// MarkRead handles POST /api/chats/:userId/read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	var req markChatsReadRequest
	if !bindJSON(c, &req, "") {
		return
	}
	mw.SetAuditUser(c, userID)
	n, err := h.store.MarkChatsRead(c.Request.Context(), userID, req.PartnerID)
	if err != nil {
		internalError(c, h.logger, "mark chats read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// requireUsers writes 404 and returns false unless every id names a user.
func requireUsers(c *gin.Context, s store.Store, logger *zap.Logger, ids ...int64) bool {
	for _, id := range ids {
		u, err := s.GetUser(c.Request.Context(), id)
		if err != nil {
			internalError(c, logger, "lookup user", err)
			return false
		}
		if u == nil {
			fail(c, http.StatusNotFound, "User not found")
			return false
		}
	}
	return true
}
