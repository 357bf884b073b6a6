package model_test

import (
	"testing"
	"time"

	"github.com/metrocity/server/model"
	"github.com/metrocity/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	u := model.NewUser{Username: "test_user", StudentID: "S1", Password: "pw", FullName: "Test User"}.Build(0)
	require.NoError(t, db.Create(&u).Error)
	assert.Greater(t, u.ID, int64(0))

	var found model.User
	require.NoError(t, db.First(&found, u.ID).Error)
	assert.Equal(t, "test_user", found.Username)
	require.NotNil(t, found.Course)
	assert.Equal(t, model.DefaultCourse, *found.Course)

	post := &model.Post{UserID: u.ID, Content: "hello", Timestamp: model.TimestampNow}
	require.NoError(t, db.Create(post).Error)

	require.NoError(t, db.Create(&model.PostLike{UserID: u.ID, PostID: post.ID}).Error)
	require.NoError(t, db.Create(&model.PostSave{UserID: u.ID, PostID: post.ID}).Error)
	require.NoError(t, db.Create(&model.PostHide{UserID: u.ID, PostID: post.ID}).Error)
	require.NoError(t, db.Create(&model.Chat{FromUserID: u.ID, ToUserID: u.ID, Message: "hi", Timestamp: model.FormatISO(time.Now())}).Error)
	require.NoError(t, db.Create(&model.Notification{UserID: u.ID, Type: model.NotifyGeneral, Content: "x", Timestamp: model.TimestampNow}).Error)
	require.NoError(t, db.Create(&model.Friendship{UserID: u.ID, FriendID: u.ID}).Error)
	require.NoError(t, db.Create(&model.AuditLog{TraceID: "trace-001", Action: "POST /api/posts", CreatedAt: time.Now()}).Error)
}

func TestNewUserBuild_AppliesDefaults(t *testing.T) {
	email := "a@b.c"
	u := model.NewUser{Username: "x", StudentID: "y", Password: "z", FullName: "X Y", Email: &email}.Build(7)
	assert.Equal(t, int64(7), u.ID)
	require.NotNil(t, u.ProfileImage)
	assert.Equal(t, model.DefaultProfileImage, *u.ProfileImage)
	require.NotNil(t, u.Course)
	assert.Equal(t, model.DefaultCourse, *u.Course)
	assert.Equal(t, &email, u.Email)
}

func TestSeed_Shape(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := model.Seed(now)
	assert.Len(t, s.Users, 5)
	assert.Len(t, s.Posts, 3)
	assert.Len(t, s.Chats, 2)
	assert.Len(t, s.Notifications, 4)
	assert.Len(t, s.Friendships, 6)
	assert.Equal(t, "2024-05-01T09:58:00.000Z", s.Chats[0].Timestamp)

	// every friendship has its reverse edge
	edges := map[[2]int64]bool{}
	for _, f := range s.Friendships {
		edges[[2]int64{f.UserID, f.FriendID}] = true
	}
	for e := range edges {
		assert.True(t, edges[[2]int64{e[1], e[0]}], "missing reverse of %v", e)
	}
}
