package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metrocity/server/presence"
	"github.com/metrocity/server/scheduler"
	"github.com/metrocity/server/store"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by the IPWhitelist middleware.
type AdminHandler struct {
	store  store.Store
	reg    *presence.Registry
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(s store.Store, reg *presence.Registry, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{store: s, reg: reg, sched: sched, logger: logger}
}

// Metrics returns entity counts, online users and scheduler state.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		internalError(c, h.logger, "metrics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":           stats,
		"online_users":    h.reg.Count(),
		"online_user_ids": h.reg.OnlineIDs(),
		"scheduler_tasks": h.sched.ListTickers(),
	})
}
