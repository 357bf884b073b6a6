package ws_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/metrocity/server/api/ws"
	"github.com/metrocity/server/model"
	"github.com/metrocity/server/plugin/hook"
	"github.com/metrocity/server/presence"
	"github.com/metrocity/server/store"
	"github.com/metrocity/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chatServer struct {
	url   string
	store *store.MemStore
	reg   *presence.Registry
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	s := testutil.SetupMemStore(t)
	reg := presence.NewRegistry(logger)
	hooks := hook.NewHookCenter()
	hooks.Register(hook.OnChatSend, 0, "ws_chat", ws.ChatHook(reg))

	router := ws.NewRouter(logger)
	ws.NewChatHandlers(s, hooks, logger).Register(router)
	h := ws.NewHandler(s, reg, router, nil, logger)

	r := gin.New()
	r.GET("/ws/chat", h.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		reg.CloseAll(time.Second)
		srv.Close()
	})
	return &chatServer{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat", store: s, reg: reg}
}

func (cs *chatServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(cs.url+"?user_id="+userID, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	pkt := readPacket(t, conn)
	require.Equal(t, ws.TypeConnected, pkt.Type)
	return conn
}

func readPacket(t *testing.T, conn *websocket.Conn) presence.Packet {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var pkt presence.Packet
	require.NoError(t, conn.ReadJSON(&pkt))
	return pkt
}

func writePacket(t *testing.T, conn *websocket.Conn, typ string, payload interface{}) {
	t.Helper()
	pkt, err := presence.NewPacket(typ, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(pkt))
}

func TestServeWS_RejectsUnknownUser(t *testing.T) {
	cs := newChatServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(cs.url+"?user_id=42", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(cs.url+"?user_id=abc", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatSend_DeliversToBoth(t *testing.T) {
	cs := newChatServer(t)
	alice := cs.dial(t, "1")
	bob := cs.dial(t, "2")
	assert.True(t, cs.reg.IsOnline(1))
	assert.True(t, cs.reg.IsOnline(2))

	writePacket(t, alice, ws.TypeChatSend, map[string]interface{}{"toUserId": 2, "message": "lunch?"})

	for _, conn := range []*websocket.Conn{bob, alice} {
		pkt := readPacket(t, conn)
		require.Equal(t, ws.TypeChatMessage, pkt.Type)
		var chat model.Chat
		require.NoError(t, json.Unmarshal(pkt.Payload, &chat))
		assert.Equal(t, int64(3), chat.ID)
		assert.Equal(t, int64(1), chat.FromUserID)
		assert.Equal(t, int64(2), chat.ToUserID)
		assert.Equal(t, "lunch?", chat.Message)
	}

	chats, err := cs.store.GetChatsByUserID(t.Context(), 2)
	require.NoError(t, err)
	require.Len(t, chats, 2)
}

func TestChatSend_OfflineRecipientStillStored(t *testing.T) {
	cs := newChatServer(t)
	alice := cs.dial(t, "1")

	writePacket(t, alice, ws.TypeChatSend, map[string]interface{}{"toUserId": 3, "message": "ping me"})
	pkt := readPacket(t, alice)
	require.Equal(t, ws.TypeChatMessage, pkt.Type)

	chats, err := cs.store.GetChatsByUserID(t.Context(), 3)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestChatSend_Invalid(t *testing.T) {
	cs := newChatServer(t)
	alice := cs.dial(t, "1")

	writePacket(t, alice, ws.TypeChatSend, map[string]interface{}{"toUserId": 2})
	pkt := readPacket(t, alice)
	require.Equal(t, ws.TypeError, pkt.Type)
	assert.JSONEq(t, `{"type":"chat_send","message":"message is required"}`, string(pkt.Payload))

	writePacket(t, alice, ws.TypeChatSend, map[string]interface{}{"toUserId": 99, "message": "hi"})
	pkt = readPacket(t, alice)
	require.Equal(t, ws.TypeError, pkt.Type)
	assert.JSONEq(t, `{"type":"chat_send","message":"User not found"}`, string(pkt.Payload))

	writePacket(t, alice, "typing", map[string]interface{}{"toUserId": 2})
	pkt = readPacket(t, alice)
	require.Equal(t, ws.TypeError, pkt.Type)
	assert.JSONEq(t, `{"type":"typing","message":"Unknown message type"}`, string(pkt.Payload))

	chats, err := cs.store.GetChatsByUserID(t.Context(), 1)
	require.NoError(t, err)
	assert.Len(t, chats, 2, "rejected packets store nothing")
}

func TestChatRead_AndPing(t *testing.T) {
	cs := newChatServer(t)
	alice := cs.dial(t, "1")

	writePacket(t, alice, ws.TypeChatRead, map[string]interface{}{"partnerId": 2})
	pkt := readPacket(t, alice)
	require.Equal(t, ws.TypeChatReadAck, pkt.Type)
	assert.JSONEq(t, `{"partnerId":2,"updated":1}`, string(pkt.Payload))

	writePacket(t, alice, ws.TypePing, nil)
	assert.Equal(t, ws.TypePong, readPacket(t, alice).Type)
}

func TestServeWS_SecondConnectionDisplacesFirst(t *testing.T) {
	cs := newChatServer(t)
	first := cs.dial(t, "1")
	_ = cs.dial(t, "1")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, 1, cs.reg.Count())
}
