package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repohub-backend-go/internal/core"
	"repohub-backend-go/internal/middleware"
)

// UserHandler handles user-profile related API endpoints.
type UserHandler struct {
	userService core.UserService
	logger      *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(us core.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{userService: us, logger: logger}
}

// InitializeUserProfile handles POST /api/v1/users/initialize.
// Called by the client after sign-in so that the backend profile exists.
func (h *UserHandler) InitializeUserProfile(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	email := c.GetString(middleware.ContextUserEmail)
	displayName := c.GetString(middleware.ContextUserDisplayName)
	if email == "" {
		h.logger.Warn("Identity token carries no email", zap.String("userId", userID))
	}

	user, created, err := h.userService.GetOrCreate(c.Request.Context(), userID, email, displayName)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if created {
		h.logger.Info("User profile created", zap.String("userId", userID))
		c.JSON(http.StatusCreated, user)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetCurrentUserProfile handles GET /api/v1/users/me.
func (h *UserHandler) GetCurrentUserProfile(c *gin.Context) {
	user, err := h.userService.GetByID(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
