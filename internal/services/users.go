package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stackit/internal/models"
	"stackit/internal/utils"
)

const profileListLimit = 50

// UserProfile 公开主页数据
type UserProfile struct {
	User            *models.User      `json:"user"`
	Level           string            `json:"level"`
	DaysSinceJoined int               `json:"days_since_joined"`
	QuestionCount   int64             `json:"question_count"`
	AnswerCount     int64             `json:"answer_count"`
	AcceptedCount   int64             `json:"accepted_count"`
	Questions       []models.Question `json:"questions,omitempty"`
	Answers         []models.Answer   `json:"answers,omitempty"`
}

type UserService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewUserService(db *gorm.DB, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{db: db, logger: logger}
}

// Profile tab 为 "questions"（默认）或 "answers"
func (s *UserService) Profile(ctx context.Context, userID uint, tab string) (*UserProfile, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, notFound(err, "User")
	}

	p := &UserProfile{
		User:            &user,
		Level:           utils.ReputationLevel(user.Reputation),
		DaysSinceJoined: utils.DaysSinceJoined(user.CreatedAt),
	}
	if err := db.Model(&models.Question{}).Where("author_id = ?", user.ID).Count(&p.QuestionCount).Error; err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	if err := db.Model(&models.Answer{}).Where("author_id = ?", user.ID).Count(&p.AnswerCount).Error; err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}
	if err := db.Model(&models.Answer{}).Where("author_id = ? AND is_accepted = ?", user.ID, true).Count(&p.AcceptedCount).Error; err != nil {
		return nil, fmt.Errorf("count accepted answers: %w", err)
	}

	switch tab {
	case "answers":
		err := db.Where("author_id = ?", user.ID).
			Order("created_at DESC, id DESC").
			Limit(profileListLimit).
			Find(&p.Answers).Error
		if err != nil {
			return nil, fmt.Errorf("list answers: %w", err)
		}
	default:
		err := db.Preload("Tags").
			Where("author_id = ?", user.ID).
			Order("created_at DESC, id DESC").
			Limit(profileListLimit).
			Find(&p.Questions).Error
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
	}
	return p, nil
}

// Reputation 声望明细，最新的在前
func (s *UserService) Reputation(ctx context.Context, userID uint, limit int) ([]models.ReputationLog, error) {
	return ReputationHistory(ctx, s.db, userID, limit)
}
