package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metrocity/server/cache"
	mw "github.com/metrocity/server/middleware"
	"github.com/metrocity/server/model"
	"github.com/metrocity/server/plugin/hook"
	"github.com/metrocity/server/store"
	"go.uber.org/zap"
)

// FeedCacheKey holds the serialized GET /api/posts response.
const FeedCacheKey = "feed:posts"

// PostHandler handles the feed, post creation, likes, saves, hides and
// deletion.
type PostHandler struct {
	store   store.Store
	cache   cache.Cache
	hooks   *hook.HookCenter
	feedTTL time.Duration
	logger  *zap.Logger

	// feedGen is bumped on every feed write. A List that read the store
	// under an older generation must not leave its result in the cache.
	feedGen atomic.Uint64
}

// NewPostHandler creates a new PostHandler. A zero feedTTL disables the
// feed cache.
func NewPostHandler(s store.Store, c cache.Cache, hooks *hook.HookCenter, feedTTL time.Duration, logger *zap.Logger) *PostHandler {
	return &PostHandler{store: s, cache: c, hooks: hooks, feedTTL: feedTTL, logger: logger}
}

// List handles GET /api/posts. With ?userId= the posts that user hid are
// left out; the cached feed itself is shared by everyone.
func (h *PostHandler) List(c *gin.Context) {
	var viewer int64
	if q := c.Query("userId"); q != "" {
		id, err := strconv.ParseInt(q, 10, 64)
		if err != nil || id <= 0 {
			fail(c, http.StatusBadRequest, "Invalid userId")
			return
		}
		viewer = id
	}
	ctx := c.Request.Context()
	posts, ok := h.feed(c)
	if !ok {
		return
	}
	if viewer == 0 {
		c.JSON(http.StatusOK, posts)
		return
	}
	hidden, err := h.store.GetHiddenPostIDs(ctx, viewer)
	if err != nil {
		internalError(c, h.logger, "list posts", err)
		return
	}
	c.JSON(http.StatusOK, withoutPosts(posts, hidden))
}

// feed returns the shared feed, from the cache when possible.
func (h *PostHandler) feed(c *gin.Context) ([]model.PostWithUser, bool) {
	ctx := c.Request.Context()
	if h.feedTTL > 0 {
		var cached []model.PostWithUser
		hit, err := cache.GetJSON(ctx, h.cache, FeedCacheKey, &cached)
		if err != nil {
			h.logger.Warn("feed cache read failed", zap.Error(err))
		}
		if hit {
			return cached, true
		}
	}
	gen := h.feedGen.Load()
	posts, err := h.store.GetPosts(ctx)
	if err != nil {
		internalError(c, h.logger, "list posts", err)
		return nil, false
	}
	if h.feedTTL > 0 && h.feedGen.Load() == gen {
		if err := cache.SetJSON(ctx, h.cache, FeedCacheKey, posts, h.feedTTL); err != nil {
			h.logger.Warn("feed cache write failed", zap.Error(err))
		}
		// A write that landed between the check and the set.
		if h.feedGen.Load() != gen {
			h.dropFeed(ctx)
		}
	}
	return posts, true
}

func withoutPosts(posts []model.PostWithUser, ids []int64) []model.PostWithUser {
	if len(ids) == 0 {
		return posts
	}
	skip := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		skip[id] = struct{}{}
	}
	out := make([]model.PostWithUser, 0, len(posts))
	for _, p := range posts {
		if _, ok := skip[p.ID]; !ok {
			out = append(out, p)
		}
	}
	return out
}

type createPostRequest struct {
	UserID    int64   `json:"userId" binding:"required"`
	Content   string  `json:"content" binding:"required"`
	MediaType *string `json:"mediaType" binding:"omitempty,oneof=image video pdf"`
	MediaURL  *string `json:"mediaUrl"`
}

// Create handles POST /api/posts.
func (h *PostHandler) Create(c *gin.Context) {
	var req createPostRequest
	if !bindJSON(c, &req, "") {
		return
	}
	ctx := c.Request.Context()
	owner, err := h.store.GetUser(ctx, req.UserID)
	if err != nil {
		internalError(c, h.logger, "create post", err)
		return
	}
	if owner == nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}
	mw.SetAuditUser(c, req.UserID)

	draft := &hook.PostDraft{
		UserID: req.UserID,
		Post:   model.NewPost{Content: req.Content, MediaType: req.MediaType, MediaURL: req.MediaURL},
	}
	out, err := h.hooks.Trigger(ctx, hook.BeforePostCreate, draft)
	if errors.Is(err, hook.ErrInterrupt) {
		fail(c, http.StatusBadRequest, "Post content is required")
		return
	}
	if err != nil {
		h.logger.Warn("before_post_create hook", zap.Error(err))
	}
	if d, ok := out.(*hook.PostDraft); ok {
		draft = d
	}

	post, err := h.store.CreatePost(ctx, draft.UserID, draft.Post)
	if err != nil {
		internalError(c, h.logger, "create post", err)
		return
	}
	h.invalidateFeed(ctx)
	if _, err := h.hooks.Trigger(ctx, hook.AfterPostCreate, post); err != nil {
		h.logger.Warn("after_post_create hook", zap.Error(err))
	}
	c.JSON(http.StatusOK, post)
}

type userRequest struct {
	UserID int64 `json:"userId" binding:"required"`
}

// ToggleLike handles POST /api/posts/:id/like. A user who has already
// liked the post unlikes it; otherwise the post is liked and its owner is
// notified.
func (h *PostHandler) ToggleLike(c *gin.Context) {
	postID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req userRequest
	if !bindJSON(c, &req, "User ID is required") {
		return
	}
	ctx := c.Request.Context()
	post, err := h.store.GetPost(ctx, postID)
	if err != nil {
		internalError(c, h.logger, "like post", err)
		return
	}
	if post == nil {
		fail(c, http.StatusNotFound, "Post not found")
		return
	}
	mw.SetAuditUser(c, req.UserID)

	liked, err := h.store.HasUserLikedPost(ctx, req.UserID, postID)
	if err != nil {
		internalError(c, h.logger, "like post", err)
		return
	}
	if liked {
		if err := h.store.UnlikePost(ctx, req.UserID, postID); err != nil {
			internalError(c, h.logger, "unlike post", err)
			return
		}
		h.invalidateFeed(ctx)
		c.JSON(http.StatusOK, gin.H{"message": "Post unliked", "liked": false})
		return
	}
	if err := h.store.LikePost(ctx, req.UserID, postID); err != nil {
		internalError(c, h.logger, "like post", err)
		return
	}
	h.invalidateFeed(ctx)
	h.notifyLike(ctx, req.UserID, post)
	c.JSON(http.StatusOK, gin.H{"message": "Post liked", "liked": true})
}

// notifyLike tells the post owner who liked it. Self-likes and unknown
// likers are not announced. Failures are logged only.
func (h *PostHandler) notifyLike(ctx context.Context, likerID int64, post *model.Post) {
	if post.UserID == likerID {
		return
	}
	liker, err := h.store.GetUser(ctx, likerID)
	if err != nil || liker == nil {
		return
	}
	n, err := h.store.CreateNotification(ctx, post.UserID, model.NotifyLike, liker.FullName+" liked your post", &likerID)
	if err != nil {
		h.logger.Warn("like notification failed", zap.Int64("post_id", post.ID), zap.Error(err))
		return
	}
	if _, err := h.hooks.Trigger(ctx, hook.OnNotificationCreated, n); err != nil {
		h.logger.Warn("on_notification_created hook", zap.Error(err))
	}
}

// Delete handles DELETE /api/posts/:id. Only the owner may delete.
func (h *PostHandler) Delete(c *gin.Context) {
	postID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req userRequest
	if !bindJSON(c, &req, "User ID is required") {
		return
	}
	ctx := c.Request.Context()
	post, err := h.store.GetPost(ctx, postID)
	if err != nil {
		internalError(c, h.logger, "delete post", err)
		return
	}
	if post == nil {
		fail(c, http.StatusNotFound, "Post not found")
		return
	}
	mw.SetAuditUser(c, req.UserID)
	if post.UserID != req.UserID {
		fail(c, http.StatusForbidden, "You can only delete your own posts")
		return
	}
	deleted, err := h.store.DeletePost(ctx, req.UserID, postID)
	if err != nil {
		internalError(c, h.logger, "delete post", err)
		return
	}
	if !deleted {
		fail(c, http.StatusNotFound, "Post not found")
		return
	}
	h.invalidateFeed(ctx)
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

// Save handles POST /api/posts/:id/save.
func (h *PostHandler) Save(c *gin.Context) {
	post, userID, ok := h.postForUser(c, "save post")
	if !ok {
		return
	}
	if _, err := h.store.SavePost(c.Request.Context(), userID, post.ID); err != nil {
		internalError(c, h.logger, "save post", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post saved", "saved": true})
}

// Unsave handles DELETE /api/posts/:id/save.
func (h *PostHandler) Unsave(c *gin.Context) {
	post, userID, ok := h.postForUser(c, "unsave post")
	if !ok {
		return
	}
	if _, err := h.store.UnsavePost(c.Request.Context(), userID, post.ID); err != nil {
		internalError(c, h.logger, "unsave post", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post unsaved", "saved": false})
}

// Hide handles POST /api/posts/:id/hide. The post disappears from that
// user's GET /api/posts?userId= view only.
func (h *PostHandler) Hide(c *gin.Context) {
	post, userID, ok := h.postForUser(c, "hide post")
	if !ok {
		return
	}
	if _, err := h.store.HidePost(c.Request.Context(), userID, post.ID); err != nil {
		internalError(c, h.logger, "hide post", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post hidden"})
}

// Saved handles GET /api/users/:id/saved.
func (h *PostHandler) Saved(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	u, err := h.store.GetUser(ctx, userID)
	if err != nil {
		internalError(c, h.logger, "saved posts", err)
		return
	}
	if u == nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}
	posts, err := h.store.GetSavedPosts(ctx, userID)
	if err != nil {
		internalError(c, h.logger, "saved posts", err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// postForUser resolves the :id post and the {userId} body of per-user post
// actions, writing 400 or 404 when either is missing.
func (h *PostHandler) postForUser(c *gin.Context, op string) (*model.Post, int64, bool) {
	postID, ok := int64Param(c, "id")
	if !ok {
		return nil, 0, false
	}
	var req userRequest
	if !bindJSON(c, &req, "User ID is required") {
		return nil, 0, false
	}
	ctx := c.Request.Context()
	post, err := h.store.GetPost(ctx, postID)
	if err != nil {
		internalError(c, h.logger, op, err)
		return nil, 0, false
	}
	if post == nil {
		fail(c, http.StatusNotFound, "Post not found")
		return nil, 0, false
	}
	u, err := h.store.GetUser(ctx, req.UserID)
	if err != nil {
		internalError(c, h.logger, op, err)
		return nil, 0, false
	}
	if u == nil {
		fail(c, http.StatusNotFound, "User not found")
		return nil, 0, false
	}
	mw.SetAuditUser(c, req.UserID)
	return post, req.UserID, true
}

// invalidateFeed runs after every store write that changes the feed.
func (h *PostHandler) invalidateFeed(ctx context.Context) {
	if h.feedTTL <= 0 {
		return
	}
	h.feedGen.Add(1)
	h.dropFeed(ctx)
}

func (h *PostHandler) dropFeed(ctx context.Context) {
	if err := h.cache.Del(ctx, FeedCacheKey); err != nil {
		h.logger.Warn("feed cache invalidate failed", zap.Error(err))
	}
}
