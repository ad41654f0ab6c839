package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stackit/internal/services"
	"stackit/internal/utils"
)

type UserHandler struct {
	users  *services.UserService
	logger *zap.Logger
}

func NewUserHandler(users *services.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// Profile GET /api/users/:id?tab=questions|answers
func (h *UserHandler) Profile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.users.Profile(c.Request.Context(), id, c.DefaultQuery("tab", "questions"))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, p)
}

// Reputation GET /api/users/me/reputation
func (h *UserHandler) Reputation(c *gin.Context) {
	logs, err := h.users.Reputation(c.Request.Context(), currentUser(c).ID, utils.StringToInt(c.Query("limit")))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, logs)
}
