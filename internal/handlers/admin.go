package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stackit/internal/services"
)

type AdminHandler struct {
	mod           *services.ModerationService
	notifications *services.NotificationService
	logger        *zap.Logger
}

func NewAdminHandler(mod *services.ModerationService, notifications *services.NotificationService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{mod: mod, notifications: notifications, logger: logger}
}

// Users GET /api/admin/users?search=&role=&isBanned=&page=&limit=
func (h *AdminHandler) Users(c *gin.Context) {
	page, limit := pageParams(c)
	filter := services.UserFilter{
		Search: c.Query("search"),
		Role:   c.Query("role"),
		Page:   page,
		Limit:  limit,
	}
	if raw, ok := c.GetQuery("isBanned"); ok {
		banned, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "Invalid isBanned")
			return
		}
		filter.IsBanned = &banned
	}
	users, total, err := h.mod.ListUsers(c.Request.Context(), currentUser(c).Role, filter)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Paged(c, users, total, page, limit)
}

// Ban PATCH /api/admin/users/:id/ban {"isBanned": bool, "banReason": string}
func (h *AdminHandler) Ban(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		IsBanned  *bool  `json:"isBanned"`
		BanReason string `json:"banReason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.IsBanned == nil {
		badRequest(c, "isBanned is required")
		return
	}
	user, err := h.mod.BanUser(c.Request.Context(), id, *req.IsBanned, req.BanReason, currentUser(c).Role)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	h.logger.Info("user ban updated",
		zap.Uint("target_id", id),
		zap.Bool("banned", user.IsBanned),
		zap.Uint("admin_id", currentUser(c).ID),
	)
	OK(c, user)
}

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.mod.SiteStats(c.Request.Context(), currentUser(c).Role)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, stats)
}

// Announce POST /api/admin/announcements {"message": string}
func (h *AdminHandler) Announce(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	sent, err := h.notifications.Announce(c.Request.Context(), currentUser(c), req.Message)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, gin.H{"recipients": sent})
}
