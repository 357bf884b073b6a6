package rest

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/metrocity/server/middleware"
	"github.com/metrocity/server/store"
	"go.uber.org/zap"
)

// UserHandler handles profile endpoints.
type UserHandler struct {
	store  store.Store
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(s store.Store, logger *zap.Logger) *UserHandler {
	return &UserHandler{store: s, logger: logger}
}

// Get handles GET /api/users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	u, err := h.store.GetUser(c.Request.Context(), id)
	if err != nil {
		internalError(c, h.logger, "get user", err)
		return
	}
	if u == nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}
	c.JSON(http.StatusOK, u)
}

type passwordRequest struct {
	NewPassword string `json:"newPassword" binding:"required,min=1"`
}

// UpdatePassword handles PATCH /api/users/:id/password.
func (h *UserHandler) UpdatePassword(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req passwordRequest
	if !bindJSON(c, &req, "New password is required") {
		return
	}
	ctx := c.Request.Context()
	u, err := h.store.GetUser(ctx, id)
	if err != nil {
		internalError(c, h.logger, "update password", err)
		return
	}
	if u == nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}
	mw.SetAuditUser(c, id)
	if err := h.store.UpdateUserPassword(ctx, id, req.NewPassword); err != nil {
		internalError(c, h.logger, "update password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

// Placeholder handles GET /api/placeholder/:width/:height by redirecting
// to an external placeholder image of that size.
func (h *UserHandler) Placeholder(c *gin.Context) {
	w, ok := int64Param(c, "width")
	if !ok {
		return
	}
	hgt, ok := int64Param(c, "height")
	if !ok {
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("https://via.placeholder.com/%dx%d", w, hgt))
}
