package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stackit/internal/services"
)

type AIHandler struct {
	ai     *services.AIAnswerService
	logger *zap.Logger
}

func NewAIHandler(ai *services.AIAnswerService, logger *zap.Logger) *AIHandler {
	return &AIHandler{ai: ai, logger: logger}
}

// Generate POST /api/ai/answer/:id (问题 ID)，已生成过时返回 200
func (h *AIHandler) Generate(c *gin.Context) {
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	answer, created, err := h.ai.Generate(c.Request.Context(), questionID)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "data": answer, "created": created})
}

func (h *AIHandler) Get(c *gin.Context) {
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	answer, err := h.ai.Get(c.Request.Context(), questionID)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, answer)
}

// Stats GET /api/ai/stats
func (h *AIHandler) Stats(c *gin.Context) {
	stats, err := h.ai.Stats(c.Request.Context())
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, stats)
}
