package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/metrocity/server/middleware"
	"github.com/metrocity/server/store"
	"go.uber.org/zap"
)

// NotificationHandler lists notifications and marks them read.
type NotificationHandler struct {
	store  store.Store
	logger *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(s store.Store, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{store: s, logger: logger}
}

// List handles GET /api/notifications/:userId.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	list, err := h.store.GetNotificationsByUserID(c.Request.Context(), userID)
	if err != nil {
		internalError(c, h.logger, "list notifications", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// MarkRead handles POST /api/notifications/:userId/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	mw.SetAuditUser(c, userID)
	found, err := h.store.MarkNotificationRead(c.Request.Context(), userID, id)
	if err != nil {
		internalError(c, h.logger, "mark notification read", err)
		return
	}
	if !found {
		fail(c, http.StatusNotFound, "Notification not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}
