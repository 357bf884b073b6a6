package rest_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/metrocity/server/model"
	"github.com/metrocity/server/plugin/hook"
	"github.com/metrocity/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListChats(t *testing.T) {
	env := newEnv(t)

	w := get(env.r, "/api/chats/1")
	require.Equal(t, http.StatusOK, w.Code)
	chats := decode[[]map[string]interface{}](t, w)
	require.Len(t, chats, 2)
	assert.Equal(t, float64(1), chats[0]["id"])
	assert.Equal(t, "Rukshana Begum", chats[0]["fromUser"].(map[string]interface{})["fullName"])
	assert.Equal(t, "Hafij Al Asad", chats[0]["toUser"].(map[string]interface{})["fullName"])
	assert.Equal(t, false, chats[0]["isRead"])

	w = get(env.r, "/api/chats/3")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestCreateChat(t *testing.T) {
	env := newEnv(t)
	var sent []*model.Chat
	env.hooks.Register(hook.OnChatSend, 0, "capture", func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		sent = append(sent, data.(*model.Chat))
		return data, nil
	})

	w := postJSON(env.r, "/api/chats", map[string]interface{}{
		"fromUserId": 1, "toUserId": 3, "message": "See you at the lab",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	chat := decode[model.Chat](t, w)
	assert.Equal(t, int64(3), chat.ID)
	assert.Equal(t, model.FormatISO(testutil.Now), chat.Timestamp)
	assert.False(t, chat.IsRead)
	require.Len(t, sent, 1)
	assert.Equal(t, chat.ID, sent[0].ID)

	w = get(env.r, "/api/chats/3")
	assert.Len(t, decode[[]model.ChatWithUsers](t, w), 1)
}

func TestCreateChat_Errors(t *testing.T) {
	env := newEnv(t)

	w := postJSON(env.r, "/api/chats", map[string]interface{}{"fromUserId": 1, "toUserId": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "message is required", message(t, w))

	w = postJSON(env.r, "/api/chats", map[string]interface{}{"fromUserId": 1, "toUserId": 30, "message": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkChatsRead(t *testing.T) {
	env := newEnv(t)

	w := postJSON(env.r, "/api/chats/1/read", map[string]interface{}{"partnerId": 2})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode[map[string]interface{}](t, w)["updated"])

	w = postJSON(env.r, "/api/chats/1/read", map[string]interface{}{"partnerId": 2})
	assert.Equal(t, float64(0), decode[map[string]interface{}](t, w)["updated"])
}
