package presence

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type frame struct {
	kind int
	data []byte
}

// fakeConn records frames written by the write pump.
type fakeConn struct {
	mu       sync.Mutex
	frames   []frame
	closed   bool
	failNext bool
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, frame{kind, append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) textFrames() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []frame
	for _, f := range c.frames {
		if f.kind == websocket.TextMessage {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestSession_SendWritesText(t *testing.T) {
	conn := &fakeConn{}
	s := NewSession(1, conn, zap.NewNop())
	defer s.Close()

	pkt, err := NewPacket("chat_message", map[string]string{"message": "hi"})
	require.NoError(t, err)
	assert.True(t, s.Send(pkt))

	require.Eventually(t, func() bool { return len(conn.textFrames()) == 1 }, time.Second, 5*time.Millisecond)
	var got Packet
	require.NoError(t, json.Unmarshal(conn.textFrames()[0].data, &got))
	assert.Equal(t, "chat_message", got.Type)
	assert.JSONEq(t, `{"message":"hi"}`, string(got.Payload))
}

func TestSession_CloseSendsCloseFrame(t *testing.T) {
	conn := &fakeConn{}
	s := NewSession(1, conn, zap.NewNop())
	s.Close()
	s.Close()

	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
	conn.mu.Lock()
	last := conn.frames[len(conn.frames)-1]
	conn.mu.Unlock()
	assert.Equal(t, websocket.CloseMessage, last.kind)

	assert.True(t, s.IsClosed())
	assert.False(t, s.Send(&Packet{Type: "late"}))
}

func TestSession_WriteErrorCloses(t *testing.T) {
	conn := &fakeConn{failNext: true}
	s := NewSession(1, conn, zap.NewNop())
	s.SendRaw([]byte(`{}`))
	require.Eventually(t, s.IsClosed, time.Second, 5*time.Millisecond)
	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
}

func TestSession_PingOnInterval(t *testing.T) {
	conn := &fakeConn{}
	s := &Session{UserID: 1, Conn: conn, SendChan: make(chan []byte, 1), Done: make(chan struct{}), logger: zap.NewNop()}
	go s.writePump(10 * time.Millisecond)
	defer s.Close()

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		for _, f := range conn.frames {
			if f.kind == websocket.PingMessage {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestSession_FullBufferDrops(t *testing.T) {
	// no write pump: nothing drains SendChan
	s := &Session{UserID: 1, SendChan: make(chan []byte, 1), Done: make(chan struct{}), logger: zap.NewNop()}
	assert.True(t, s.SendRaw([]byte("a")))
	assert.False(t, s.SendRaw([]byte("b")))
}

func TestRegistry_RegisterDisplaces(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	first := NewSession(7, &fakeConn{}, zap.NewNop())
	second := NewSession(7, &fakeConn{}, zap.NewNop())
	defer second.Close()

	r.Register(first)
	assert.True(t, r.IsOnline(7))
	r.Register(second)

	assert.True(t, first.IsClosed())
	assert.Same(t, second, r.Get(7))
	assert.Equal(t, 1, r.Count())

	// the displaced session's cleanup must not drop its successor
	r.Unregister(first)
	assert.True(t, r.IsOnline(7))

	r.Unregister(second)
	assert.False(t, r.IsOnline(7))
	assert.Nil(t, r.Get(7))
}

func TestRegistry_SendToAndOnlineIDs(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c1, c3 := &fakeConn{}, &fakeConn{}
	s1 := NewSession(1, c1, zap.NewNop())
	s3 := NewSession(3, c3, zap.NewNop())
	defer s1.Close()
	defer s3.Close()
	r.Register(s3)
	r.Register(s1)

	assert.Equal(t, []int64{1, 3}, r.OnlineIDs())
	assert.True(t, r.SendTo(3, &Packet{Type: "chat_message"}))
	assert.False(t, r.SendTo(2, &Packet{Type: "chat_message"}))

	require.Eventually(t, func() bool { return len(c3.textFrames()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, c1.textFrames())
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	s := NewSession(1, &fakeConn{}, zap.NewNop())
	r.Register(s)

	// simulate the read loop unregistering once the session closes
	go func() {
		<-s.Done
		r.Unregister(s)
	}()
	r.CloseAll(time.Second)
	assert.Equal(t, 0, r.Count())
	assert.True(t, s.IsClosed())
}
