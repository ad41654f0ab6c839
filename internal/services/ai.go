package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stackit/internal/apperr"
	"stackit/internal/lock"
	"stackit/internal/models"
	"stackit/internal/utils"
)

const aiSystemPrompt = `You are StackIt AI. Provide ultra-concise programming answers.

Rules:
- Maximum 150 words
- Start with the direct solution
- Only essential code snippets
- Use bullet points
- Be practical, not theoretical

Format:
**Solution:** one-line answer
**Code:** minimal example if needed
**Tips:** 2-3 bullet points max`

type AIAnswerService struct {
	db        *gorm.DB
	generator Generator
	locker    lock.Locker
	logger    *zap.Logger
}

func NewAIAnswerService(db *gorm.DB, generator Generator, locker lock.Locker, logger *zap.Logger) *AIAnswerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIAnswerService{db: db, generator: generator, locker: locker, logger: logger}
}

// Eligible 描述太短或没有标签的问题不生成 AI 回答
func Eligible(q *models.Question) bool {
	return utils.VisibleLength(q.Description) >= 20 && len(q.Tags) > 0
}

// Confidence 基础 0.7，描述详细、有标签、回答简洁各加 0.1，上限 0.95
func Confidence(q *models.Question, answer string) float64 {
	confidence := 0.7
	if utils.VisibleLength(q.Description) > 100 {
		confidence += 0.1
	}
	if len(q.Tags) > 0 {
		confidence += 0.1
	}
	if n := utf8.RuneCountInString(answer); n > 50 && n < 300 {
		confidence += 0.1
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

func buildPrompt(q *models.Question) []ChatMessage {
	tags := make([]string, len(q.Tags))
	for i, t := range q.Tags {
		tags[i] = t.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", q.Title)
	fmt.Fprintf(&b, "Details: %s\n", utils.PlainText(q.Description))
	if len(tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(tags, ", "))
	}
	b.WriteString("\nProvide a concise, practical answer in under 250 words. Focus on the solution, not theory.")
	return []ChatMessage{
		{Role: "system", Content: aiSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// Generate 每个问题只生成一次，已存在时直接返回（created=false）
func (s *AIAnswerService) Generate(ctx context.Context, questionID uint) (*models.AIAnswer, bool, error) {
	var q models.Question
	if err := s.db.WithContext(ctx).Preload("Tags").First(&q, questionID).Error; err != nil {
		return nil, false, notFound(err, "Question")
	}

	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("ai:question:%d", q.ID))
	if err != nil {
		return nil, false, fmt.Errorf("acquire ai lock: %w", err)
	}
	defer unlock()

	if existing, err := s.find(ctx, q.ID); err == nil {
		return existing, false, nil
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, false, err
	}

	if !Eligible(&q) {
		return nil, false, apperr.InvalidInput("Question does not meet criteria for AI answer generation")
	}
	if s.generator == nil {
		return nil, false, apperr.Internal("AI answers are not available", ErrLLMDisabled)
	}

	started := time.Now()
	text, err := s.generator.Complete(ctx, buildPrompt(&q))
	if err != nil {
		s.logger.Error("failed to generate ai answer", zap.Uint("question_id", q.ID), zap.Error(err))
		return nil, false, apperr.Internal("Failed to generate AI answer", err)
	}

	answer := models.AIAnswer{
		QuestionID:  q.ID,
		Content:     text,
		ContentHTML: utils.RenderMarkdown(text),
		Confidence:  Confidence(&q, text),
		Model:       s.generator.Model(),
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&answer).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.find(ctx, q.ID)
			return existing, false, findErr
		}
		return nil, false, fmt.Errorf("save ai answer: %w", err)
	}

	s.logger.Info("ai answer generated",
		zap.Uint("question_id", q.ID),
		zap.Float64("confidence", answer.Confidence),
		zap.Duration("took", time.Since(started)),
	)
	return &answer, true, nil
}

// Get 问题的 AI 回答
func (s *AIAnswerService) Get(ctx context.Context, questionID uint) (*models.AIAnswer, error) {
	return s.find(ctx, questionID)
}

// Vote helpful = +1, unhelpful = -1，规则与其他投票一致
// AIStats AI 回答的汇总数据
type AIStats struct {
	TotalAnswers      int64   `json:"totalAnswers"`
	AverageConfidence float64 `json:"averageConfidence"`
	TotalHelpfulVotes int64   `json:"totalHelpfulVotes"`
}

// Stats 一次聚合查询；没有 AI 回答时全部为 0
func (s *AIAnswerService) Stats(ctx context.Context) (*AIStats, error) {
	var stats AIStats
	err := s.db.WithContext(ctx).
		Model(&models.AIAnswer{}).
		Select("COUNT(*) AS total_answers, COALESCE(AVG(confidence), 0) AS average_confidence, COALESCE(SUM(helpful_votes), 0) AS total_helpful_votes").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("ai answer stats: %w", err)
	}
	return &stats, nil
}

func (s *AIAnswerService) find(ctx context.Context, questionID uint) (*models.AIAnswer, error) {
	var answer models.AIAnswer
	if err := s.db.WithContext(ctx).Where("question_id = ?", questionID).First(&answer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("No AI answer found for this question")
		}
		return nil, fmt.Errorf("load ai answer: %w", err)
	}
	return &answer, nil
}
