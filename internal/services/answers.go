package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stackit/internal/apperr"
	"stackit/internal/lock"
	"stackit/internal/models"
	"stackit/internal/utils"
)

const minAnswerLength = 20

type AnswerService struct {
	db      *gorm.DB
	locker  lock.Locker
	emitter Emitter
	logger  *zap.Logger
}

func NewAnswerService(db *gorm.DB, locker lock.Locker, emitter Emitter, logger *zap.Logger) *AnswerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerService{db: db, locker: locker, emitter: emitter, logger: logger}
}

func validateAnswerContent(content string) (string, error) {
	clean := utils.SanitizeHTML(strings.TrimSpace(content))
	if utils.VisibleLength(clean) < minAnswerLength {
		return "", apperr.InvalidInput("Answer must be at least %d characters long", minAnswerLength)
	}
	return clean, nil
}

// Create 回答问题，通知提问者和被 @ 的用户
func (s *AnswerService) Create(ctx context.Context, questionID uint, author *models.User, content string) (*models.Answer, error) {
	if author == nil {
		return nil, apperr.Unauthorized("Not authorized")
	}
	clean, err := validateAnswerContent(content)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var question models.Question
	if err := db.Select("id", "title", "author_id").First(&question, questionID).Error; err != nil {
		return nil, notFound(err, "Question")
	}

	answer := models.Answer{Content: clean, AuthorID: author.ID, QuestionID: question.ID}
	if err := db.Create(&answer).Error; err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	answer.Author = *author

	notify(ctx, s.emitter, Notice{
		RecipientID: question.AuthorID,
		ActorID:     uintPtr(author.ID),
		Type:        models.NotificationTypeAnswer,
		QuestionID:  uintPtr(question.ID),
		AnswerID:    uintPtr(answer.ID),
		Message:     fmt.Sprintf("%s answered your question \"%s\"", author.Username, question.Title),
	})
	notifyMentions(ctx, s.db, s.emitter, author, clean, question.ID, &answer.ID, question.AuthorID)

	s.logger.Info("answer created",
		zap.Uint("answer_id", answer.ID),
		zap.Uint("question_id", question.ID),
		zap.Uint("author_id", author.ID),
	)
	return &answer, nil
}

// Update 作者或管理员可编辑
func (s *AnswerService) Update(ctx context.Context, id uint, actor *models.User, content string) (*models.Answer, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("Not authorized")
	}
	clean, err := validateAnswerContent(content)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var answer models.Answer
	if err := db.Preload("Author").First(&answer, id).Error; err != nil {
		return nil, notFound(err, "Answer")
	}
	if answer.AuthorID != actor.ID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("Not authorized to update this answer")
	}
	if err := db.Model(&answer).Update("content", clean).Error; err != nil {
		return nil, fmt.Errorf("update answer: %w", err)
	}
	answer.Content = clean
	return &answer, nil
}

// Delete 删除回答及其评论和投票；若是被采纳的回答，同时清空问题的采纳状态并收回声望
func (s *AnswerService) Delete(ctx context.Context, id uint, actor *models.User) error {
	if actor == nil {
		return apperr.Unauthorized("Not authorized")
	}

	var answer models.Answer
	if err := s.db.WithContext(ctx).First(&answer, id).Error; err != nil {
		return notFound(err, "Answer")
	}
	if answer.AuthorID != actor.ID && !actor.IsAdmin() {
		return apperr.Forbidden("Not authorized to delete this answer")
	}

	// 与采纳操作互斥
	unlock, err := s.locker.Lock(ctx, acceptLockKey(answer.QuestionID))
	if err != nil {
		return fmt.Errorf("acquire accept lock: %w", err)
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Answer
		if err := tx.First(&current, id).Error; err != nil {
			return notFound(err, "Answer")
		}
		if current.IsAccepted {
			if err := addReputation(tx, current.AuthorID, -ReputationAccept, ActionAcceptRevoked); err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Question{}).
			Where("id = ? AND accepted_answer_id = ?", current.QuestionID, current.ID).
			Update("accepted_answer_id", nil).Error; err != nil {
			return fmt.Errorf("clear accepted answer: %w", err)
		}
		return deleteAnswersCascade(tx, []uint{current.ID})
	})
	if err != nil {
		return err
	}
	s.logger.Info("answer deleted", zap.Uint("answer_id", id), zap.Uint("actor_id", actor.ID))
	return nil
}

// Vote 回答投票
