package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stackit/internal/services"
)

type CommentHandler struct {
	comments *services.CommentService
	logger   *zap.Logger
}

func NewCommentHandler(comments *services.CommentService, logger *zap.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, logger: logger}
}

type commentRequest struct {
	Content  string `json:"content"`
	ParentID *uint  `json:"parentCommentId"`
}

// Thread GET /api/answers/:id/comments
func (h *CommentHandler) Thread(c *gin.Context) {
	answerID, ok := paramID(c, "id")
	if !ok {
		return
	}
	tree, err := h.comments.Thread(c.Request.Context(), answerID, viewerID(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, tree)
}

func (h *CommentHandler) Create(c *gin.Context) {
	answerID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	comment, err := h.comments.AddComment(c.Request.Context(), answerID, currentUser(c), req.Content, req.ParentID)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, comment)
}

func (h *CommentHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	comment, err := h.comments.UpdateComment(c.Request.Context(), id, currentUser(c), req.Content)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, comment)
}

// Delete 软删除，回复保留
func (h *CommentHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	comment, err := h.comments.SoftDelete(c.Request.Context(), id, currentUser(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, comment)
}
