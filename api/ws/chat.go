package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/metrocity/server/api/rest"
	"github.com/metrocity/server/model"
	"github.com/metrocity/server/plugin/hook"
	"github.com/metrocity/server/presence"
	"github.com/metrocity/server/store"
	"go.uber.org/zap"
)

// Packet types.
const (
	TypeConnected   = "connected"
	TypeChatSend    = "chat_send"
	TypeChatMessage = "chat_message"
	TypeChatRead    = "chat_read"
	TypeChatReadAck = "chat_read_ack"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeError       = "error"
)

type chatSendPayload struct {
	ToUserID int64  `json:"toUserId" validate:"required,gt=0"`
	Message  string `json:"message" validate:"required,max=4000"`
}

type chatReadPayload struct {
	PartnerID int64 `json:"partnerId" validate:"required,gt=0"`
}

// ChatHandlers serves the chat packet types.
type ChatHandlers struct {
	store  store.Store
	hooks  *hook.HookCenter
	logger *zap.Logger
}

// NewChatHandlers creates ChatHandlers.
func NewChatHandlers(s store.Store, hooks *hook.HookCenter, logger *zap.Logger) *ChatHandlers {
	return &ChatHandlers{store: s, hooks: hooks, logger: logger}
}

// Register attaches every chat packet handler to r.
func (h *ChatHandlers) Register(r *Router) {
	Handle(r, TypeChatSend, h.onSend)
	Handle(r, TypeChatRead, h.onRead)
	r.On(TypePing, h.onPing)
}

// onSend stores a message from the session's user. Delivery to the
// participants is left to the OnChatSend hook.
func (h *ChatHandlers) onSend(ctx context.Context, s *presence.Session, req chatSendPayload) error {
	to, err := h.store.GetUser(ctx, req.ToUserID)
	if err != nil {
		return fmt.Errorf("chat_send: lookup recipient: %w", err)
	}
	if to == nil {
		SendError(s, TypeChatSend, "User not found")
		return nil
	}
	if _, err := rest.SendChat(ctx, h.store, h.hooks, h.logger, s.UserID, model.NewChat{ToUserID: req.ToUserID, Message: req.Message}); err != nil {
		return fmt.Errorf("chat_send: %w", err)
	}
	return nil
}

// onRead marks every message from the partner to the session's user read.
func (h *ChatHandlers) onRead(ctx context.Context, s *presence.Session, req chatReadPayload) error {
	n, err := h.store.MarkChatsRead(ctx, s.UserID, req.PartnerID)
	if err != nil {
		return fmt.Errorf("chat_read: %w", err)
	}
	return send(s, TypeChatReadAck, map[string]interface{}{"partnerId": req.PartnerID, "updated": n})
}

func (h *ChatHandlers) onPing(_ context.Context, s *presence.Session, _ json.RawMessage) error {
	return send(s, TypePong, struct{}{})
}

// ChatHook returns an OnChatSend handler that delivers the stored message
// to both participants when they are online.
func ChatHook(reg *presence.Registry) hook.HookFn {
	return func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		chat, ok := data.(*model.Chat)
		if !ok {
			return data, nil
		}
		pkt, err := presence.NewPacket(TypeChatMessage, chat)
		if err != nil {
			return data, err
		}
		reg.SendTo(chat.ToUserID, pkt)
		if chat.FromUserID != chat.ToUserID {
			reg.SendTo(chat.FromUserID, pkt)
		}
		return data, nil
	}
}
