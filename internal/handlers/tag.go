package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stackit/internal/services"
	"stackit/internal/utils"
)

type TagHandler struct {
	mod    *services.ModerationService
	logger *zap.Logger
}

func NewTagHandler(mod *services.ModerationService, logger *zap.Logger) *TagHandler {
	return &TagHandler{mod: mod, logger: logger}
}

// List GET /api/tags?search=&page=&limit=
func (h *TagHandler) List(c *gin.Context) {
	page, limit := pageParams(c)
	tags, total, err := h.mod.ListTags(c.Request.Context(), c.Query("search"), page, limit)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Paged(c, tags, total, page, limit)
}

// Suggest GET /api/tags/suggest?q=
func (h *TagHandler) Suggest(c *gin.Context) {
	tags, err := h.mod.SuggestTags(c.Request.Context(), c.Query("q"), utils.StringToInt(c.Query("limit")))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, tags)
}

func (h *TagHandler) Create(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	tag, err := h.mod.CreateTag(c.Request.Context(), req.Name, req.Description, currentUser(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, tag)
}

// Approve PATCH /api/tags/:id/approve {"approved": bool}
func (h *TagHandler) Approve(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req := struct {
		Approved *bool `json:"approved"`
	}{}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	approved := req.Approved == nil || *req.Approved
	tag, err := h.mod.ApproveTag(c.Request.Context(), id, approved, currentUser(c).Role)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, tag)
}

func (h *TagHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.mod.DeleteTag(c.Request.Context(), id, currentUser(c).Role); err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, gin.H{"id": id})
}
