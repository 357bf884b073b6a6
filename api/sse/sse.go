package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metrocity/server/cache"
	"github.com/metrocity/server/model"
	"github.com/metrocity/server/plugin/hook"
	"github.com/metrocity/server/store"
	"go.uber.org/zap"
)

const (
	announceChannel = "announce"
	keepalive       = 30 * time.Second
)

// NotifyChannel is the pub/sub channel carrying userID's notifications.
func NotifyChannel(userID int64) string {
	return "notify:" + strconv.FormatInt(userID, 10)
}

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	store     store.Store
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, s store.Store, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, store: s, keepalive: keepalive, logger: logger}
}

// ServeSSE handles GET /sse/notifications?user_id=<id>.
// It streams the user's new notifications as "notification" events and
// system announcements as "announce" events.
func (h *Handler) ServeSSE(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid user_id"})
		return
	}
	u, err := h.store.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("sse user lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	notifyCh := NotifyChannel(userID)
	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, notifyCh, announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("connected", fmt.Sprintf(`{"userId":%d}`, userID))
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			event := "notification"
			if msg.Channel == announceChannel {
				event = "announce"
			}
			c.SSEvent(event, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Comment line; keeps proxies from timing out idle streams.
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// Announce publishes an announcement message to all SSE subscribers.
func (h *Handler) Announce(ctx context.Context, message string) error {
	return h.pubsub.Publish(ctx, announceChannel, message)
}

type announceRequest struct {
	Message string `json:"message" binding:"required"`
}

// PostAnnounce handles POST /api/admin/announce.
func (h *Handler) PostAnnounce(c *gin.Context) {
	var req announceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "message is required"})
		return
	}
	b, _ := json.Marshal(gin.H{"message": req.Message})
	if err := h.Announce(c.Request.Context(), string(b)); err != nil {
		h.logger.Error("announce failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Announcement sent"})
}

// NotificationHook returns an OnNotificationCreated handler that publishes
// each stored notification to its recipient's channel.
func NotificationHook(ps cache.PubSub) hook.HookFn {
	return func(ctx context.Context, _ string, data interface{}) (interface{}, error) {
		n, ok := data.(*model.Notification)
		if !ok {
			return data, nil
		}
		b, err := json.Marshal(n)
		if err != nil {
			return data, err
		}
		return data, ps.Publish(ctx, NotifyChannel(n.UserID), string(b))
	}
}
