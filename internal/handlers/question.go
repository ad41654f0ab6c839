package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stackit/internal/services"
)

type QuestionHandler struct {
	questions *services.QuestionService
	accept    *services.AcceptanceService
	logger    *zap.Logger
}

func NewQuestionHandler(questions *services.QuestionService, accept *services.AcceptanceService, logger *zap.Logger) *QuestionHandler {
	return &QuestionHandler{questions: questions, accept: accept, logger: logger}
}

type questionRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

func (r questionRequest) input() services.QuestionInput {
	return services.QuestionInput{Title: r.Title, Description: r.Description, Tags: r.Tags}
}

// List GET /api/questions?page=&limit=&tag=&unanswered=
func (h *QuestionHandler) List(c *gin.Context) {
	page, limit := pageParams(c)
	questions, total, err := h.questions.List(c.Request.Context(), services.ListQuery{
		Page:       page,
		Limit:      limit,
		Tag:        c.Query("tag"),
		Unanswered: boolQuery(c, "unanswered"),
	})
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Paged(c, questions, total, page, limit)
}

// Detail GET /api/questions/:id，顺带计数浏览
func (h *QuestionHandler) Detail(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	q, err := h.questions.Get(c.Request.Context(), id, services.Viewer{UserID: viewerID(c), IP: c.ClientIP()})
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, q)
}

func (h *QuestionHandler) Create(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	q, err := h.questions.Create(c.Request.Context(), currentUser(c), req.input())
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, q)
}

func (h *QuestionHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	q, err := h.questions.Update(c.Request.Context(), id, currentUser(c), req.input())
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, q)
}

func (h *QuestionHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.questions.Delete(c.Request.Context(), id, currentUser(c)); err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, gin.H{"id": id})
}

// Accept POST /api/questions/:id/accept/:answerId
func (h *QuestionHandler) Accept(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	answerID, ok := paramID(c, "answerId")
	if !ok {
		return
	}
	q, err := h.accept.AcceptAnswer(c.Request.Context(), id, answerID, currentUser(c).ID)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, q)
}

// Unaccept DELETE /api/questions/:id/accept
func (h *QuestionHandler) Unaccept(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	q, err := h.accept.UnacceptAnswer(c.Request.Context(), id, currentUser(c).ID)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, q)
}
