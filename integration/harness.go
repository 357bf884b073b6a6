package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/metrocity/server/api"
	"github.com/metrocity/server/audit"
	"github.com/metrocity/server/cache"
	"github.com/metrocity/server/config"
	"github.com/metrocity/server/plugin/hook"
	"github.com/metrocity/server/presence"
	"github.com/metrocity/server/scheduler"
	"github.com/metrocity/server/store"
	"github.com/metrocity/server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB       *gorm.DB // nil for the memory store
	Store    store.Store
	Cache    cache.Cache
	PubSub   cache.PubSub
	Registry *presence.Registry
	Audit    *audit.Service
	Server   *httptest.Server
	URL      string // http://127.0.0.1:<port>
	WSURL    string // ws://127.0.0.1:<port>/ws/chat
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{AdminIPs: []string{"127.0.0.1", "::1"}},
		Cache:  config.CacheConfig{FeedTTL: 30 * time.Second},
		Security: config.SecurityConfig{
			RateLimitRPS:   1000,
			RateLimitBurst: 2000,
		},
	}
}

// NewTestServer creates a fully wired server over the seeded memory store.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	return newTestServer(t, testutil.SetupMemStore(t), nil)
}

// NewGormTestServer is NewTestServer over a seeded sqlite GormStore that
// also receives the audit log.
func NewGormTestServer(t *testing.T) *TestServer {
	t.Helper()
	db := testutil.SetupTestDB(t)
	s := store.NewGormStore(db, store.WithClock(testutil.Clock))
	_, err := s.Seed(context.Background())
	require.NoError(t, err)
	return newTestServer(t, s, db)
}

func newTestServer(t *testing.T, s store.Store, db *gorm.DB) *TestServer {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	c, pubsub := testutil.SetupTestCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	reg := presence.NewRegistry(logger)
	sched := scheduler.New(logger)
	auditSvc := audit.New(db, logger)

	r := api.NewEngine(ctx, api.Deps{
		Config:    testConfig(),
		Store:     s,
		Cache:     c,
		PubSub:    pubsub,
		Hooks:     hook.NewHookCenter(),
		Registry:  reg,
		Scheduler: sched,
		Auditor:   auditSvc,
		Logger:    logger,
	})

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		reg.CloseAll(time.Second)
		server.Close()
		sched.Stop()
		auditSvc.Stop(context.Background())
		cancel()
	})

	return &TestServer{
		DB:       db,
		Store:    s,
		Cache:    c,
		PubSub:   pubsub,
		Registry: reg,
		Audit:    auditSvc,
		Server:   server,
		URL:      server.URL,
		WSURL:    "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat",
	}
}

// Do sends a JSON request; a nil body sends none.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST with a JSON body.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body)
}

// Get sends a GET.
func (ts *TestServer) Get(t *testing.T, path string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// Login logs in a seeded or registered user and returns its id.
func (ts *TestServer) Login(t *testing.T, username, studentID, password string) int64 {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username":  username,
		"studentId": studentID,
		"password":  password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	ReadJSON(t, resp, &result)
	return result.User.ID
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// A background readLoop feeds readCh so a timed-out wait never poisons
// the connection with an expired read deadline.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the chat socket as userID and waits for "connected".
func (ts *TestServer) ConnectWS(t *testing.T, userID string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?user_id="+userID, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(wc.Close)
	wc.RecvType("connected", 2*time.Second)
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a packet with the next sequence number.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	pkt, err := presence.NewPacket(msgType, payload)
	require.NoError(wc.t, err)
	pkt.Seq = atomic.AddUint64(&wc.seq, 1)
	require.NoError(wc.t, wc.Conn.WriteJSON(pkt))
}

// RecvType reads packets until one of msgType arrives.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) presence.Packet {
	wc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case res := <-wc.readCh:
			require.NoError(wc.t, res.err, "WS recv failed while waiting for %q", msgType)
			var pkt presence.Packet
			require.NoError(wc.t, json.Unmarshal(res.data, &pkt))
			if pkt.Type == msgType {
				return pkt
			}
		case <-deadline:
			wc.t.Fatalf("timed out waiting for message type %q", msgType)
			return presence.Packet{}
		}
	}
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// --- SSE client ---

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// SSEClient reads a notification stream.
type SSEClient struct {
	t      *testing.T
	events chan SSEEvent
}

// OpenSSE subscribes to userID's notification stream and waits for
// "connected".
func (ts *TestServer) OpenSSE(t *testing.T, userID string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse/notifications?user_id="+userID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() {
		cancel()
		_ = resp.Body.Close()
	})

	sc := &SSEClient{t: t, events: make(chan SSEEvent, 64)}
	go sc.readLoop(bufio.NewScanner(resp.Body))
	sc.Next("connected", 2*time.Second)
	return sc
}

func (sc *SSEClient) readLoop(scan *bufio.Scanner) {
	defer close(sc.events)
	var cur SSEEvent
	for scan.Scan() {
		line := scan.Text()
		switch {
		case line == "":
			if cur.Name != "" {
				sc.events <- cur
			}
			cur = SSEEvent{}
		case strings.HasPrefix(line, "event:"):
			cur.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

// Next waits for the next event named name, skipping others.
func (sc *SSEClient) Next(name string, timeout time.Duration) SSEEvent {
	sc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-sc.events:
			require.True(sc.t, ok, "SSE stream closed while waiting for %q", name)
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			sc.t.Fatalf("timed out waiting for SSE event %q", name)
			return SSEEvent{}
		}
	}
}
