package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stackit/internal/apperr"
	"stackit/internal/models"
	"stackit/internal/services"
)

type VoteHandler struct {
	votes  *services.VoteLedger
	logger *zap.Logger
}

func NewVoteHandler(votes *services.VoteLedger, logger *zap.Logger) *VoteHandler {
	return &VoteHandler{votes: votes, logger: logger}
}

// voteRequest 支持 {"value": 1|-1} 或 {"vote": "up"|"down"|"helpful"|"unhelpful"}
type voteRequest struct {
	Value *int   `json:"value"`
	Vote  string `json:"vote"`
}

func parseVote(c *gin.Context) (int, error) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return 0, apperr.InvalidInput("Invalid vote request")
	}
	if req.Value != nil {
		if *req.Value != 1 && *req.Value != -1 {
			return 0, apperr.InvalidInput("Vote value must be 1 or -1")
		}
		return *req.Value, nil
	}
	return services.ParseDirection(req.Vote)
}

// For 返回指定目标类型的投票处理函数，:id 为目标 ID
func (h *VoteHandler) For(target models.VoteTarget) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.cast(c, target)
	}
}

// Vote 通用入口 POST /api/votes/:type/:id
func (h *VoteHandler) Vote(c *gin.Context) {
	target := models.VoteTarget(c.Param("type"))
	if !target.Valid() {
		badRequest(c, "Invalid vote target")
		return
	}
	h.cast(c, target)
}

func (h *VoteHandler) cast(c *gin.Context, target models.VoteTarget) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	value, err := parseVote(c)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	res, err := h.votes.CastVote(c.Request.Context(), target, id, currentUser(c).ID, value)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	OK(c, res)
}
