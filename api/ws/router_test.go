package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/metrocity/server/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newSession creates a Session without a write pump; queued packets stay
// in SendChan for the test to read.
func newSession(userID int64) *presence.Session {
	return &presence.Session{
		UserID:   userID,
		SendChan: make(chan []byte, 16),
		Done:     make(chan struct{}),
	}
}

func packet(t *testing.T, seq uint64, msgType string, payload interface{}) []byte {
	t.Helper()
	pkt, err := presence.NewPacket(msgType, payload)
	require.NoError(t, err)
	pkt.Seq = seq
	b, err := json.Marshal(pkt)
	require.NoError(t, err)
	return b
}

// replies drains every packet queued for s.
func replies(t *testing.T, s *presence.Session) []presence.Packet {
	t.Helper()
	var out []presence.Packet
	for {
		select {
		case raw := <-s.SendChan:
			var pkt presence.Packet
			require.NoError(t, json.Unmarshal(raw, &pkt))
			out = append(out, pkt)
		default:
			return out
		}
	}
}

func errorReply(t *testing.T, s *presence.Session) ErrorPayload {
	t.Helper()
	got := replies(t, s)
	require.Len(t, got, 1)
	require.Equal(t, TypeError, got[0].Type)
	var ep ErrorPayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &ep))
	return ep
}

type sendReq struct {
	ToUserID int64  `json:"toUserId" validate:"required,gt=0"`
	Message  string `json:"message" validate:"required,max=5"`
}

func TestHandle_DecodesAndValidates(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var got []sendReq
	Handle(r, "chat_send", func(_ context.Context, _ *presence.Session, p sendReq) error {
		got = append(got, p)
		return nil
	})
	s := newSession(1)

	r.Dispatch(s, packet(t, 0, "chat_send", map[string]interface{}{"toUserId": 2, "message": "hi"}))
	require.Len(t, got, 1)
	assert.Equal(t, sendReq{ToUserID: 2, Message: "hi"}, got[0])
	assert.Empty(t, replies(t, s))

	cases := []struct {
		payload interface{}
		want    string
	}{
		{map[string]interface{}{"toUserId": 2}, "message is required"},
		{map[string]interface{}{"message": "hi"}, "toUserId is required"},
		{map[string]interface{}{"toUserId": -4, "message": "hi"}, "toUserId must be greater than 0"},
		{map[string]interface{}{"toUserId": 2, "message": "too long"}, "message must be at most 5 characters"},
		{"not an object", "Invalid payload"},
		{nil, "toUserId is required"},
	}
	for _, tc := range cases {
		r.Dispatch(s, packet(t, 0, "chat_send", tc.payload))
		ep := errorReply(t, s)
		assert.Equal(t, "chat_send", ep.Type, "%v", tc.payload)
		assert.Equal(t, tc.want, ep.Message, "%v", tc.payload)
	}
	assert.Len(t, got, 1, "invalid payloads never reach the handler")
}

func TestDispatch_UnknownTypeAnswered(t *testing.T) {
	r := NewRouter(zap.NewNop())
	s := newSession(1)
	r.Dispatch(s, packet(t, 1, "typing", nil))
	assert.Equal(t, ErrorPayload{Type: "typing", Message: "Unknown message type"}, errorReply(t, s))
}

func TestDispatch_MalformedAnswered(t *testing.T) {
	r := NewRouter(zap.NewNop())
	s := newSession(1)

	r.Dispatch(s, []byte("not json"))
	assert.Equal(t, ErrorPayload{Message: "Malformed packet"}, errorReply(t, s))

	r.Dispatch(s, []byte(`{"seq":1,"payload":{}}`))
	assert.Equal(t, ErrorPayload{Message: "Malformed packet"}, errorReply(t, s))
}

func TestDispatch_HandlerErrorAnswered(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.On("chat_read", func(_ context.Context, _ *presence.Session, _ json.RawMessage) error {
		return assert.AnError
	})
	s := newSession(1)
	r.Dispatch(s, packet(t, 1, "chat_read", nil))
	assert.Equal(t, ErrorPayload{Type: "chat_read", Message: "internal error"}, errorReply(t, s))
}

func TestDispatch_ReplayDroppedSilently(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var calls int
	r.On("ping", func(_ context.Context, _ *presence.Session, _ json.RawMessage) error {
		calls++
		return nil
	})
	s := newSession(1)

	r.Dispatch(s, packet(t, 5, "ping", nil))
	r.Dispatch(s, packet(t, 5, "ping", nil))
	r.Dispatch(s, packet(t, 3, "ping", nil))
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(5), s.LastSeq)
	assert.Empty(t, replies(t, s))

	r.Dispatch(s, packet(t, 6, "ping", nil))
	// seq 0 opts out of ordering
	r.Dispatch(s, packet(t, 0, "ping", nil))
	assert.Equal(t, 3, calls)
	assert.Equal(t, uint64(6), s.LastSeq)
}

func TestDispatch_TraceIDPerPacket(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var ids []string
	r.On("ping", func(ctx context.Context, s *presence.Session, _ json.RawMessage) error {
		ids = append(ids, TraceIDFromCtx(ctx))
		return nil
	})
	s := newSession(1)
	r.Dispatch(s, packet(t, 1, "ping", nil))
	r.Dispatch(s, packet(t, 2, "ping", nil))
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
	assert.Equal(t, ids[1], s.TraceID)

	assert.Empty(t, TraceIDFromCtx(context.Background()))
}

func TestOn_ReplacesHandler(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var calls []string
	r.On("ping", func(_ context.Context, _ *presence.Session, _ json.RawMessage) error {
		calls = append(calls, "first")
		return nil
	})
	r.On("ping", func(_ context.Context, _ *presence.Session, _ json.RawMessage) error {
		calls = append(calls, "second")
		return nil
	})
	r.Dispatch(newSession(1), packet(t, 1, "ping", nil))
	assert.Equal(t, []string{"second"}, calls)
}
