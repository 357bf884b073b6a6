// Package api assembles the HTTP engine: middleware, REST routes, the chat
// WebSocket and the notification stream.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metrocity/server/api/rest"
	"github.com/metrocity/server/api/sse"
	"github.com/metrocity/server/api/ws"
	"github.com/metrocity/server/cache"
	"github.com/metrocity/server/config"
	mw "github.com/metrocity/server/middleware"
	"github.com/metrocity/server/plugin/hook"
	"github.com/metrocity/server/presence"
	"github.com/metrocity/server/scheduler"
	"github.com/metrocity/server/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Deps are the components the engine serves.
type Deps struct {
	Config    *config.Config
	Store     store.Store
	Cache     cache.Cache
	PubSub    cache.PubSub
	Hooks     *hook.HookCenter
	Registry  *presence.Registry
	Scheduler *scheduler.Scheduler
	Auditor   mw.Auditor
	Logger    *zap.Logger
}

// Hook names registered by NewEngine.
const (
	HookRequireContent = "require_post_content"
	HookChatDelivery   = "ws_chat_delivery"
	HookNotifyStream   = "sse_notify"
)

// NewEngine builds the gin engine and registers the domain hooks on
// d.Hooks. ctx bounds background work started by middleware.
func NewEngine(ctx context.Context, d Deps) *gin.Engine {
	cfg := d.Config
	logger := d.Logger

	d.Hooks.Register(hook.BeforePostCreate, 0, HookRequireContent, hook.RequirePostContent)
	d.Hooks.Register(hook.OnChatSend, 100, HookChatDelivery, ws.ChatHook(d.Registry))
	d.Hooks.Register(hook.OnNotificationCreated, 100, HookNotifyStream, sse.NotificationHook(d.PubSub))

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger, "/health"), mw.Recovery(logger))
	r.Use(mw.RateLimit(ctx, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))
	if d.Auditor != nil {
		r.Use(mw.Audit(d.Auditor))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authH := rest.NewAuthHandler(d.Store, logger)
	userH := rest.NewUserHandler(d.Store, logger)
	postH := rest.NewPostHandler(d.Store, d.Cache, d.Hooks, cfg.Cache.FeedTTL, logger)
	chatH := rest.NewChatHandler(d.Store, d.Hooks, logger)
	notifyH := rest.NewNotificationHandler(d.Store, logger)
	friendH := rest.NewFriendHandler(d.Store, d.Hooks, d.Registry, logger)
	adminH := rest.NewAdminHandler(d.Store, d.Registry, d.Scheduler, logger)
	sseH := sse.NewHandler(d.PubSub, d.Store, logger)

	api := r.Group("/api")
	{
		api.POST("/auth/login", authH.Login)
		api.POST("/auth/register", authH.Register)

		api.GET("/users/:id", userH.Get)
		api.GET("/users/:id/saved", postH.Saved)
		api.PATCH("/users/:id/password", userH.UpdatePassword)
		api.GET("/placeholder/:width/:height", userH.Placeholder)

		api.GET("/posts", postH.List)
		api.POST("/posts", postH.Create)
		api.POST("/posts/:id/like", postH.ToggleLike)
		api.POST("/posts/:id/save", postH.Save)
		api.DELETE("/posts/:id/save", postH.Unsave)
		api.POST("/posts/:id/hide", postH.Hide)
		api.DELETE("/posts/:id", postH.Delete)

		api.GET("/chats/:userId", chatH.List)
		api.POST("/chats", chatH.Create)
		api.POST("/chats/:userId/read", chatH.MarkRead)

		api.GET("/notifications/:userId", notifyH.List)
		api.POST("/notifications/:userId/:id/read", notifyH.MarkRead)

		api.GET("/friends/:userId", friendH.List)
		api.GET("/friends/:userId/requests", friendH.Requests)
		api.GET("/friends/:userId/suggestions", friendH.Suggestions)
		api.POST("/friends/request", friendH.SendRequest)
		api.POST("/friends/accept", friendH.Accept)
		api.POST("/friends/reject", friendH.Reject)
		api.DELETE("/friends/:userId/:friendId", friendH.Remove)
		api.DELETE("/suggestions/:userId/:suggestionId", friendH.RemoveSuggestion)

		adminG := api.Group("/admin", mw.IPWhitelist(cfg.Server.AdminIPs))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/announce", sseH.PostAnnounce)
	}

	r.GET("/sse/notifications", sseH.ServeSSE)

	wsRouter := ws.NewRouter(logger)
	ws.NewChatHandlers(d.Store, d.Hooks, logger).Register(wsRouter)
	wsH := ws.NewHandler(d.Store, d.Registry, wsRouter, cfg.Security.AllowedOrigins, logger)
	r.GET("/ws/chat", wsH.ServeWS)

	return r
}
