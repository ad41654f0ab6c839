package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stackit/internal/apperr"
	"stackit/internal/lock"
	"stackit/internal/metrics"
	"stackit/internal/models"
)

// AcceptanceService 每个问题至多一个被采纳的回答，只有提问者能采纳
type AcceptanceService struct {
	db      *gorm.DB
	locker  lock.Locker
	emitter Emitter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewAcceptanceService(db *gorm.DB, locker lock.Locker, emitter Emitter, m *metrics.Metrics, logger *zap.Logger) *AcceptanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcceptanceService{db: db, locker: locker, emitter: emitter, metrics: m, logger: logger}
}

// AcceptAnswer 采纳回答，替换掉之前被采纳的回答。重复采纳同一个回答不改变任何状态。
func (s *AcceptanceService) AcceptAnswer(ctx context.Context, questionID, answerID, actorID uint) (*models.Question, error) {
	unlock, err := s.locker.Lock(ctx, acceptLockKey(questionID))
	if err != nil {
		return nil, fmt.Errorf("acquire accept lock: %w", err)
	}
	defer unlock()

	var (
		question  models.Question
		answer    models.Answer
		unchanged bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&question, questionID).Error; err != nil {
			return notFound(err, "Question")
		}
		if err := tx.First(&answer, answerID).Error; err != nil {
			return notFound(err, "Answer")
		}
		if question.AuthorID != actorID {
			return apperr.Forbidden("Only the question author can accept an answer")
		}
		if answer.QuestionID != question.ID {
			return apperr.Conflict("Answer does not belong to this question")
		}

		if answer.IsAccepted && question.AcceptedAnswerID != nil && *question.AcceptedAnswerID == answer.ID {
			unchanged = true
			return nil
		}

		// 先取消旧的采纳，部分唯一索引要求同一时刻只有一条 is_accepted
		var displaced []models.Answer
		if err := tx.Where("question_id = ? AND is_accepted = ? AND id <> ?", question.ID, true, answer.ID).
			Find(&displaced).Error; err != nil {
			return fmt.Errorf("load accepted answers: %w", err)
		}
		if len(displaced) > 0 {
			if err := tx.Model(&models.Answer{}).
				Where("question_id = ? AND id <> ?", question.ID, answer.ID).
				Updates(map[string]any{"is_accepted": false, "accepted_at": nil}).Error; err != nil {
				return fmt.Errorf("clear accepted answers: %w", err)
			}
		}

		now := time.Now().UTC()
		if err := tx.Model(&answer).Updates(map[string]any{"is_accepted": true, "accepted_at": now}).Error; err != nil {
			return fmt.Errorf("accept answer: %w", err)
		}
		if err := tx.Model(&question).Update("accepted_answer_id", answer.ID).Error; err != nil {
			return fmt.Errorf("set accepted answer: %w", err)
		}

		if err := addReputation(tx, answer.AuthorID, ReputationAccept, ActionAnswerAccepted); err != nil {
			return err
		}
		for _, prev := range displaced {
			if err := addReputation(tx, prev.AuthorID, -ReputationAccept, ActionAcceptDisplaced); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if unchanged {
		s.metrics.RecordAccept("unchanged")
	} else {
		s.metrics.RecordAccept("accepted")
		s.logger.Info("answer accepted",
			zap.Uint("question_id", question.ID),
			zap.Uint("answer_id", answer.ID),
			zap.Uint("actor_id", actorID),
		)
		notify(ctx, s.emitter, Notice{
			RecipientID: answer.AuthorID,
			ActorID:     uintPtr(actorID),
			Type:        models.NotificationTypeAccept,
			QuestionID:  uintPtr(question.ID),
			AnswerID:    uintPtr(answer.ID),
			Message:     fmt.Sprintf("Your answer to \"%s\" was accepted", question.Title),
		})
	}

	return s.reload(ctx, question.ID)
}

// AcceptByAnswer 只知道回答 ID 时，先找到所属问题
func (s *AcceptanceService) AcceptByAnswer(ctx context.Context, answerID, actorID uint) (*models.Question, error) {
	var answer models.Answer
	if err := s.db.WithContext(ctx).Select("id", "question_id").First(&answer, answerID).Error; err != nil {
		return nil, notFound(err, "Answer")
	}
	return s.AcceptAnswer(ctx, answer.QuestionID, answer.ID, actorID)
}

// UnacceptAnswer 取消采纳并收回声望
func (s *AcceptanceService) UnacceptAnswer(ctx context.Context, questionID, actorID uint) (*models.Question, error) {
	unlock, err := s.locker.Lock(ctx, acceptLockKey(questionID))
	if err != nil {
		return nil, fmt.Errorf("acquire accept lock: %w", err)
	}
	defer unlock()

	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var question models.Question
		if err := forUpdate(tx).First(&question, questionID).Error; err != nil {
			return notFound(err, "Question")
		}
		if question.AuthorID != actorID {
			return apperr.Forbidden("Only the question author can unaccept an answer")
		}

		var accepted []models.Answer
		if err := tx.Where("question_id = ? AND is_accepted = ?", question.ID, true).Find(&accepted).Error; err != nil {
			return fmt.Errorf("load accepted answers: %w", err)
		}
		if len(accepted) == 0 && question.AcceptedAnswerID == nil {
			return nil
		}
		changed = true

		if err := tx.Model(&models.Answer{}).
			Where("question_id = ? AND is_accepted = ?", question.ID, true).
			Updates(map[string]any{"is_accepted": false, "accepted_at": nil}).Error; err != nil {
			return fmt.Errorf("clear accepted answers: %w", err)
		}
		if err := tx.Model(&question).Update("accepted_answer_id", nil).Error; err != nil {
			return fmt.Errorf("clear accepted answer: %w", err)
		}
		for _, a := range accepted {
			if err := addReputation(tx, a.AuthorID, -ReputationAccept, ActionAcceptRevoked); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.RecordAccept("unaccepted")
	}
	return s.reload(ctx, questionID)
}

func (s *AcceptanceService) reload(ctx context.Context, questionID uint) (*models.Question, error) {
	var q models.Question
	err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Tags").
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&q, questionID).Error
	if err != nil {
		return nil, notFound(err, "Question")
	}
	q.AnswerCount = len(q.Answers)
	return &q, nil
}
