package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/metrocity/server/presence"
	"go.uber.org/zap"
)

// HandlerFunc processes a raw WS packet payload.
type HandlerFunc func(ctx context.Context, session *presence.Session, payload json.RawMessage) error

// Router dispatches chat packets by type. Packets it cannot route, and
// handlers that fail, are answered with an "error" packet naming the
// offending type, so a client never waits on a request that went nowhere.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers fn for msgType, replacing any earlier handler.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Handle registers fn for msgType with the payload decoded into the struct
// P and checked against its `validate` tags. A payload failing either step
// is answered with an error packet and fn is not called.
func Handle[P any](r *Router, msgType string, fn func(ctx context.Context, s *presence.Session, p P) error) {
	r.On(msgType, func(ctx context.Context, s *presence.Session, raw json.RawMessage) error {
		var p P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				SendError(s, msgType, "Invalid payload")
				return nil
			}
		}
		if err := validate.Struct(p); err != nil {
			SendError(s, msgType, payloadMessage(err))
			return nil
		}
		return fn(ctx, s, p)
	})
}

// Dispatch decodes raw bytes, validates seq, and invokes the handler for
// the packet's type.
func (r *Router) Dispatch(s *presence.Session, raw []byte) {
	var pkt presence.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil || pkt.Type == "" {
		r.logger.Warn("malformed packet", zap.Int64("user_id", s.UserID), zap.Error(err))
		SendError(s, "", "Malformed packet")
		return
	}
	// Seq == 0 disables replay protection for that packet.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.Int64("user_id", s.UserID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.Int64("user_id", s.UserID))
		SendError(s, pkt.Type, "Unknown message type")
		return
	}

	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)
	if err := fn(ctx, s, pkt.Payload); err != nil {
		r.logger.Error("handler error",
			zap.String("type", pkt.Type),
			zap.Int64("user_id", s.UserID),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
		SendError(s, pkt.Type, "internal error")
	}
}

// ErrorPayload is the body of an "error" packet. Type is the packet type
// the error answers, empty when the packet could not be decoded.
type ErrorPayload struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// SendError queues an error packet for s.
func SendError(s *presence.Session, ref, msg string) {
	_ = send(s, TypeError, ErrorPayload{Type: ref, Message: msg})
}

func send(s *presence.Session, typ string, payload interface{}) error {
	pkt, err := presence.NewPacket(typ, payload)
	if err != nil {
		return err
	}
	s.Send(pkt)
	return nil
}

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// payloadMessage describes the first failing field.
func payloadMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Invalid payload"
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
