package ws

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/metrocity/server/presence"
	"github.com/metrocity/server/store"
	"go.uber.org/zap"
)

const (
	readWait       = 60 * time.Second
	maxMessageSize = 8 << 10
)

// Handler is the Gin handler for GET /ws/chat.
type Handler struct {
	store    store.Store
	reg      *presence.Registry
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// allowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(s store.Store, reg *presence.Registry, router *Router, allowedOrigins []string, logger *zap.Logger) *Handler {
	h := &Handler{
		store:  s,
		reg:    reg,
		router: router,
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws/chat?user_id=<id>.
func (h *Handler) ServeWS(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid user_id"})
		return
	}
	u, err := h.store.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("ws user lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := presence.NewSession(userID, conn, h.logger)
	h.reg.Register(sess)
	if pkt, err := presence.NewPacket(TypeConnected, gin.H{"userId": userID}); err == nil {
		sess.Send(pkt)
	}
	h.readPump(conn, sess)
}

// readPump reads messages until the connection closes. Closing the session
// closes the connection from the write side, which ends the loop.
func (h *Handler) readPump(conn *websocket.Conn, s *presence.Session) {
	defer func() {
		s.Close()
		h.reg.Unregister(s)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("user_id", s.UserID),
					zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		h.router.Dispatch(s, raw)
	}
}
