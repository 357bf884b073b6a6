package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metrocity/server/api"
	"github.com/metrocity/server/cache"
	"github.com/metrocity/server/config"
	"github.com/metrocity/server/plugin/hook"
	"github.com/metrocity/server/presence"
	"github.com/metrocity/server/scheduler"
	"github.com/metrocity/server/store"
	"github.com/metrocity/server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	r     *gin.Engine
	store *store.MemStore
	cache cache.Cache
	hooks *hook.HookCenter
	reg   *presence.Registry
}

// newEnv serves the production engine over a seeded MemStore. httptest
// requests come from 192.0.2.1, which the admin whitelist admits.
func newEnv(t *testing.T, opts ...store.Option) *testEnv {
	t.Helper()
	mem := testutil.SetupMemStore(t, opts...)
	return newEnvWith(t, mem, mem)
}

// newEnvWith is newEnv with s served in place of mem; mem stays available
// for assertions.
func newEnvWith(t *testing.T, mem *store.MemStore, s store.Store) *testEnv {
	t.Helper()
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	hooks := hook.NewHookCenter()
	reg := presence.NewRegistry(logger)
	sched := scheduler.New(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		reg.CloseAll(time.Second)
		sched.Stop()
		cancel()
	})

	r := api.NewEngine(ctx, api.Deps{
		Config: &config.Config{
			Server:   config.ServerConfig{AdminIPs: []string{"192.0.2.1"}},
			Cache:    config.CacheConfig{FeedTTL: time.Minute},
			Security: config.SecurityConfig{RateLimitRPS: 1000, RateLimitBurst: 2000},
		},
		Store:     s,
		Cache:     c,
		PubSub:    ps,
		Hooks:     hooks,
		Registry:  reg,
		Scheduler: sched,
		Logger:    logger,
	})
	return &testEnv{r: r, store: mem, cache: c, hooks: hooks, reg: reg}
}

type nopConn struct{}

func (nopConn) WriteMessage(int, []byte) error { return nil }
func (nopConn) SetWriteDeadline(time.Time) error { return nil }
func (nopConn) Close() error { return nil }

// goOnline registers a live chat session for userID.
func (e *testEnv) goOnline(t *testing.T, userID int64) {
	t.Helper()
	s := presence.NewSession(userID, nopConn{}, zap.NewNop())
	e.reg.Register(s)
	t.Cleanup(func() {
		s.Close()
		e.reg.Unregister(s)
	})
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodPost, path, body)
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodGet, path, nil)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]interface{}](t, w)["message"].(string)
}
