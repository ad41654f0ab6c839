package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stackit/internal/services"
)

type NotificationHandler struct {
	notifications *services.NotificationService
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *services.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// List GET /api/notifications?unread=true
func (h *NotificationHandler) List(c *gin.Context) {
	page, limit := pageParams(c)
	items, total, err := h.notifications.List(c.Request.Context(), currentUser(c).ID, boolQuery(c, "unread"), page, limit)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Paged(c, items, total, page, limit)
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, gin.H{"count": count})
}

// Read PUT /api/notifications/:id
func (h *NotificationHandler) Read(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(c.Request.Context(), id, currentUser(c).ID)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, n)
}

// ReadAll PUT /api/notifications
func (h *NotificationHandler) ReadAll(c *gin.Context) {
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, gin.H{"updated": updated})
}
