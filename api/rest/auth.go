package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/metrocity/server/middleware"
	"github.com/metrocity/server/model"
	"github.com/metrocity/server/store"
	"go.uber.org/zap"
)

// AuthHandler handles login and registration.
// Credentials are compared verbatim; no token or session is issued.
type AuthHandler struct {
	store  store.Store
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(s store.Store, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{store: s, logger: logger}
}

type loginRequest struct {
	Username  string `json:"username" binding:"required,min=1"`
	StudentID string `json:"studentId" binding:"required,min=1"`
	Password  string `json:"password" binding:"required,min=1"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req, "Invalid request") {
		return
	}
	u, err := h.store.GetUserByCredentials(c.Request.Context(), req.Username, req.StudentID, req.Password)
	if err != nil {
		internalError(c, h.logger, "login", err)
		return
	}
	if u == nil {
		fail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	mw.SetAuditUser(c, u.ID)
	c.JSON(http.StatusOK, gin.H{"user": u})
}

type registerRequest struct {
	Username  string  `json:"username" binding:"required,min=1"`
	StudentID string  `json:"studentId" binding:"required,min=1"`
	Password  string  `json:"password" binding:"required,min=1"`
	FullName  string  `json:"fullName" binding:"required,min=1"`
	Email     *string `json:"email"`
	Birthday  *string `json:"birthday"`
}

// Register handles POST /api/auth/register.
// Usernames are unique at this layer only; the store does not check.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req, "") {
		return
	}
	ctx := c.Request.Context()
	existing, err := h.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		internalError(c, h.logger, "register", err)
		return
	}
	if existing != nil {
		fail(c, http.StatusConflict, "Username already exists")
		return
	}
	u, err := h.store.CreateUser(ctx, model.NewUser{
		Username:  req.Username,
		StudentID: req.StudentID,
		Password:  req.Password,
		FullName:  req.FullName,
		Email:     req.Email,
		Birthday:  req.Birthday,
	})
	if err != nil {
		internalError(c, h.logger, "register", err)
		return
	}
	mw.SetAuditUser(c, u.ID)
	c.JSON(http.StatusOK, gin.H{
		"user":    u,
		"message": "Registration request submitted successfully",
	})
}
