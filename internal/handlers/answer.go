package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stackit/internal/services"
)

type AnswerHandler struct {
	answers *services.AnswerService
	accept  *services.AcceptanceService
	logger  *zap.Logger
}

func NewAnswerHandler(answers *services.AnswerService, accept *services.AcceptanceService, logger *zap.Logger) *AnswerHandler {
	return &AnswerHandler{answers: answers, accept: accept, logger: logger}
}

type contentRequest struct {
	Content string `json:"content"`
}

// Create POST /api/answers/:id/answers，:id 为问题 ID
func (h *AnswerHandler) Create(c *gin.Context) {
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	a, err := h.answers.Create(c.Request.Context(), questionID, currentUser(c), req.Content)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, a)
}

func (h *AnswerHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	a, err := h.answers.Update(c.Request.Context(), id, currentUser(c), req.Content)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, a)
}

func (h *AnswerHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.answers.Delete(c.Request.Context(), id, currentUser(c)); err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, gin.H{"id": id})
}

// Accept POST /api/answers/:id/accept，问题由回答反查
func (h *AnswerHandler) Accept(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	q, err := h.accept.AcceptByAnswer(c.Request.Context(), id, currentUser(c).ID)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, q)
}
