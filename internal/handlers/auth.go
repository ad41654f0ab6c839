package handlers

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stackit/internal/middleware"
	"stackit/internal/models"
	"stackit/internal/services"
	"stackit/internal/utils"
)

type AuthHandler struct {
	auth   *services.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth *services.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type profile struct {
	*models.User
	Level string `json:"level"`
}

func newProfile(u *models.User) profile {
	return profile{User: u, Level: utils.ReputationLevel(u.Reputation)}
}

func (h *AuthHandler) startSession(c *gin.Context, user *models.User) error {
	session := sessions.Default(c)
	session.Clear()
	session.Set(middleware.SessionUserKey, user.ID)
	return session.Save()
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	if err := h.startSession(c, user); err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, newProfile(user))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	if err := h.startSession(c, user); err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, newProfile(user))
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, nil)
}

func (h *AuthHandler) Me(c *gin.Context) {
	OK(c, newProfile(currentUser(c)))
}
