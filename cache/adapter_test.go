package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache_LocalFallback(t *testing.T) {
	c, err := NewCache(CacheConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Get(ctx, "nope")
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestJSONHelpers(t *testing.T) {
	c, err := NewCache(CacheConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	type item struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	var got []item
	hit, err := GetJSON(ctx, c, "items", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, SetJSON(ctx, c, "items", []item{{1, "a"}, {2, "b"}}, 0))
	hit, err = GetJSON(ctx, c, "items", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []item{{1, "a"}, {2, "b"}}, got)

	require.NoError(t, c.Set(ctx, "bad", "{not json", 0))
	_, err = GetJSON(ctx, c, "bad", &got)
	assert.Error(t, err)
}

func TestNewPubSub_LocalRoundTrip(t *testing.T) {
	ps, err := NewPubSub(CacheConfig{LocalPubSubBuf: 8})
	require.NoError(t, err)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "notify:1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "notify:1", `{"id":5}`))
	select {
	case msg := <-ch:
		assert.Equal(t, "notify:1", msg.Channel)
		assert.Equal(t, `{"id":5}`, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
