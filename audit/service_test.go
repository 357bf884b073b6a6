package audit

import (
	"context"
	"testing"
	"time"

	"github.com/metrocity/server/model"
	"github.com/metrocity/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLog_EnqueuedAndFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())

	userID := int64(2)
	svc.Log(AuditEntry{
		TraceID:    "trace-123",
		UserID:     &userID,
		Action:     "POST /api/posts",
		Status:     200,
		Request:    map[string]string{"content": "hello"},
		IP:         "127.0.0.1",
		DurationMs: 42,
	})

	// Stop flushes remaining entries
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	require.NotNil(t, logs[0].UserID)
	assert.Equal(t, int64(2), *logs[0].UserID)
	assert.Equal(t, "POST /api/posts", logs[0].Action)
	assert.Equal(t, 200, logs[0].Status)
	assert.JSONEq(t, `{"content":"hello"}`, string(logs[0].Request))
	assert.Equal(t, 42, logs[0].DurationMs)
	assert.False(t, logs[0].CreatedAt.IsZero())
}

func TestLog_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())

	for i := 0; i < batchSize+5; i++ {
		svc.Log(AuditEntry{Action: "batch", IP: "10.0.0.1"})
	}
	svc.Stop(context.Background())

	var count int64
	require.NoError(t, db.Model(&model.AuditLog{}).Count(&count).Error)
	assert.Equal(t, int64(batchSize+5), count)
}

func TestLog_TimerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())
	defer svc.Stop(context.Background())

	svc.Log(AuditEntry{Action: "timer_test"})

	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&model.AuditLog{}).Count(&count)
		return count == 1
	}, flushInterval+2*time.Second, 100*time.Millisecond)
}

func TestLog_NoDatabaseWritesToLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc := New(nil, zap.New(core))

	userID := int64(7)
	svc.Log(AuditEntry{TraceID: "t-1", UserID: &userID, Action: "DELETE /api/posts/3", Status: 403, Error: "not owner"})
	svc.Log(AuditEntry{TraceID: "t-2", Action: "POST /api/auth/login", Status: 401})
	svc.Stop(context.Background())

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, "t-1", first["trace_id"])
	assert.Equal(t, int64(7), first["user_id"])
	assert.Equal(t, "not owner", first["error"])
	_, hasUser := entries[1].ContextMap()["user_id"]
	assert.False(t, hasUser)
}

func TestStop_Idempotent(t *testing.T) {
	svc := New(nil, zap.NewNop())
	svc.Stop(context.Background())
	assert.NotPanics(t, func() { svc.Stop(context.Background()) })
}

func TestLog_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc := &Service{ch: make(chan *model.AuditLog, 1), stopCh: make(chan struct{}), logger: zap.New(core)}

	// no worker draining: the second entry has nowhere to go
	svc.Log(AuditEntry{Action: "a"})
	svc.Log(AuditEntry{Action: "b"})
	assert.Equal(t, 1, logs.FilterMessage("audit channel full, dropping entry").Len())
}
