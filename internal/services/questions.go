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
	"stackit/internal/metrics"
	"stackit/internal/models"
	"stackit/internal/utils"
)

const (
	ViewDedupWindow = 24 * time.Hour
	maxQuestionTags = 5
)

// QuestionInput 创建/编辑问题的参数，编辑时 nil 字段保持不变
type QuestionInput struct {
	Title       *string
	Description *string
	Tags        []string
}

// ListQuery 列表查询条件
type ListQuery struct {
	Page       int
	Limit      int
	Tag        string
	Unanswered bool
}

// Viewer 访问者：登录用户按 ID 去重，匿名访客按 IP
type Viewer struct {
	UserID uint
	IP     string
}

func (v Viewer) key() string {
	if v.UserID != 0 {
		return fmt.Sprintf("user:%d", v.UserID)
	}
	if v.IP != "" {
		return "ip:" + v.IP
	}
	return ""
}

type QuestionService struct {
	db      *gorm.DB
	votes   *VoteLedger
	emitter Emitter
	views   *utils.TTLCache[bool]
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewQuestionService(db *gorm.DB, votes *VoteLedger, emitter Emitter, m *metrics.Metrics, logger *zap.Logger) (*QuestionService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	views, err := utils.NewTTLCache[bool](10000)
	if err != nil {
		return nil, fmt.Errorf("create view cache: %w", err)
	}
	return &QuestionService{db: db, votes: votes, emitter: emitter, views: views, metrics: m, logger: logger}, nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n < 10 || n > 200 {
		return "", apperr.InvalidInput("Title must be between 10 and 200 characters")
	}
	return title, nil
}

func validateDescription(description string) (string, error) {
	clean := utils.SanitizeHTML(strings.TrimSpace(description))
	if utils.VisibleLength(clean) < 20 {
		return "", apperr.InvalidInput("Description must be at least 20 characters long")
	}
	return clean, nil
}

func validateTagNames(names []string) error {
	if len(names) == 0 {
		return apperr.InvalidInput("At least one tag is required")
	}
	if len(names) > maxQuestionTags {
		return apperr.InvalidInput("A question can have at most %d tags", maxQuestionTags)
	}
	return nil
}

// List 按创建时间倒序
func (s *QuestionService) List(ctx context.Context, q ListQuery) ([]models.Question, int64, error) {
	query := func() *gorm.DB {
		tx := s.db.WithContext(ctx).Model(&models.Question{})
		if tag := strings.ToLower(strings.TrimSpace(q.Tag)); tag != "" {
			tx = tx.Where("EXISTS (SELECT 1 FROM question_tags qt JOIN tags t ON t.id = qt.tag_id WHERE qt.question_id = questions.id AND t.name = ?)", tag)
		}
		if q.Unanswered {
			tx = tx.Where("NOT EXISTS (SELECT 1 FROM answers a WHERE a.question_id = questions.id)")
		}
		return tx
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	offset, size := Page(q.Page, q.Limit)
	var questions []models.Question
	err := query().
		Preload("Author").
		Preload("Tags").
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(size).
		Find(&questions).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	if err := s.fillAnswerCounts(ctx, questions); err != nil {
		return nil, 0, err
	}
	return questions, total, nil
}

func (s *QuestionService) fillAnswerCounts(ctx context.Context, questions []models.Question) error {
	if len(questions) == 0 {
		return nil
	}
	ids := make([]uint, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	var rows []struct {
		QuestionID uint
		Total      int
	}
	err := s.db.WithContext(ctx).Model(&models.Answer{}).
		Select("question_id, COUNT(*) AS total").
		Where("question_id IN ?", ids).
		Group("question_id").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("count answers: %w", err)
	}
	counts := make(map[uint]int, len(rows))
	for _, r := range rows {
		counts[r.QuestionID] = r.Total
	}
	for i := range questions {
		questions[i].AnswerCount = counts[questions[i].ID]
	}
	return nil
}

// Get 问题详情，回答按 采纳 > 票数 > 时间 排序；顺带记录浏览
func (s *QuestionService) Get(ctx context.Context, id uint, viewer Viewer) (*models.Question, error) {
	var q models.Question
	err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Tags").
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_accepted DESC, vote_count DESC, created_at ASC, id ASC")
		}).
		Preload("Answers.Author").
		First(&q, id).Error
	if err != nil {
		return nil, notFound(err, "Question")
	}
	q.AnswerCount = len(q.Answers)

	if counted, err := s.RecordView(ctx, q.ID, viewer); err != nil {
		s.logger.Warn("failed to record question view", zap.Uint("question_id", q.ID), zap.Error(err))
	} else if counted {
		q.Views++
	}

	if viewer.UserID != 0 {
		if err := s.fillUserVotes(ctx, &q, viewer.UserID); err != nil {
			return nil, err
		}
	}
	return &q, nil
}

func (s *QuestionService) fillUserVotes(ctx context.Context, q *models.Question, userID uint) error {
	votes, err := s.votes.UserVotes(ctx, models.VoteTargetQuestion, userID, []uint{q.ID})
	if err != nil {
		return err
	}
	if v, ok := votes[q.ID]; ok {
		q.UserVote = &v
	}

	if len(q.Answers) == 0 {
		return nil
	}
	ids := make([]uint, len(q.Answers))
	for i, a := range q.Answers {
		ids[i] = a.ID
	}
	answerVotes, err := s.votes.UserVotes(ctx, models.VoteTargetAnswer, userID, ids)
	if err != nil {
		return err
	}
	for i := range q.Answers {
		if v, ok := answerVotes[q.Answers[i].ID]; ok {
			vote := v
			q.Answers[i].UserVote = &vote
		}
	}
	return nil
}

// RecordView 24 小时内同一访客只计一次，返回本次是否计数
func (s *QuestionService) RecordView(ctx context.Context, questionID uint, viewer Viewer) (bool, error) {
	viewerKey := viewer.key()
	if viewerKey == "" {
		return false, nil
	}
	cacheKey := fmt.Sprintf("%d|%s", questionID, viewerKey)
	if _, ok := s.views.Get(cacheKey); ok {
		return false, nil
	}

	now := time.Now().UTC()
	counted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var view models.QuestionView
		res := tx.Where("question_id = ? AND viewer_key = ?", questionID, viewerKey).Limit(1).Find(&view)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected > 0 {
			if now.Sub(view.ViewedAt) < ViewDedupWindow {
				s.views.Set(cacheKey, true, ViewDedupWindow-now.Sub(view.ViewedAt))
				return nil
			}
			if err := tx.Model(&view).Update("viewed_at", now).Error; err != nil {
				return err
			}
		} else {
			view = models.QuestionView{QuestionID: questionID, ViewerKey: viewerKey, ViewedAt: now}
			if viewer.UserID != 0 {
				view.UserID = uintPtr(viewer.UserID)
			}
			if err := tx.Create(&view).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Question{}).Where("id = ?", questionID).
			UpdateColumn("views", gorm.Expr("views + ?", 1)).Error; err != nil {
			return err
		}
		counted = true
		return nil
	})
	if err != nil {
		// 并发下另一个请求已经插入了浏览记录
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("record view: %w", err)
	}
	if counted {
		s.views.Set(cacheKey, true, ViewDedupWindow)
	}
	return counted, nil
}

// PruneViews 删除窗口外的浏览记录，返回删除条数
func (s *QuestionService) PruneViews(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-ViewDedupWindow)
	res := s.db.WithContext(ctx).Where("viewed_at < ?", cutoff).Delete(&models.QuestionView{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune views: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Create 提问，标签不存在时自动创建（未审核）
func (s *QuestionService) Create(ctx context.Context, author *models.User, in QuestionInput) (*models.Question, error) {
	if author == nil {
		return nil, apperr.Unauthorized("Not authorized")
	}
	if in.Title == nil || in.Description == nil {
		return nil, apperr.InvalidInput("Title and description are required")
	}
	title, err := validateTitle(*in.Title)
	if err != nil {
		return nil, err
	}
	description, err := validateDescription(*in.Description)
	if err != nil {
		return nil, err
	}
	if err := validateTagNames(in.Tags); err != nil {
		return nil, err
	}

	question := models.Question{Title: title, Description: description, AuthorID: author.ID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := ResolveTags(tx, in.Tags, author.ID)
		if err != nil {
			return err
		}
		question.Tags = tags
		if err := tx.Omit("Tags.*").Create(&question).Error; err != nil {
			return fmt.Errorf("create question: %w", err)
		}
		return adjustTagCounts(tx, tags, 1)
	})
	if err != nil {
		return nil, err
	}

	question.Author = *author
	s.logger.Info("question created", zap.Uint("question_id", question.ID), zap.Uint("author_id", author.ID))
	notifyMentions(ctx, s.db, s.emitter, author, description, question.ID, nil, 0)
	return &question, nil
}

// Update 作者或管理员可编辑；修改标签时同步 question_count
func (s *QuestionService) Update(ctx context.Context, id uint, actor *models.User, in QuestionInput) (*models.Question, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("Not authorized")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q models.Question
		if err := tx.Preload("Tags").First(&q, id).Error; err != nil {
			return notFound(err, "Question")
		}
		if q.AuthorID != actor.ID && !actor.IsAdmin() {
			return apperr.Forbidden("Not authorized to update this question")
		}

		updates := map[string]any{}
		if in.Title != nil {
			title, err := validateTitle(*in.Title)
			if err != nil {
				return err
			}
			updates["title"] = title
		}
		if in.Description != nil {
			description, err := validateDescription(*in.Description)
			if err != nil {
				return err
			}
			updates["description"] = description
		}
		if len(updates) > 0 {
			if err := tx.Model(&q).Updates(updates).Error; err != nil {
				return fmt.Errorf("update question: %w", err)
			}
		}

		if in.Tags != nil {
			if err := validateTagNames(in.Tags); err != nil {
				return err
			}
			tags, err := ResolveTags(tx, in.Tags, actor.ID)
			if err != nil {
				return err
			}
			if err := adjustTagCounts(tx, q.Tags, -1); err != nil {
				return err
			}
			if err := tx.Model(&q).Association("Tags").Replace(tags); err != nil {
				return fmt.Errorf("replace tags: %w", err)
			}
			if err := adjustTagCounts(tx, tags, 1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// Delete 级联删除：回答、评论、投票、AI 回答、浏览记录，并回退标签计数
func (s *QuestionService) Delete(ctx context.Context, id uint, actor *models.User) error {
	if actor == nil {
		return apperr.Unauthorized("Not authorized")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q models.Question
		if err := tx.Preload("Tags").First(&q, id).Error; err != nil {
			return notFound(err, "Question")
		}
		if q.AuthorID != actor.ID && !actor.IsAdmin() {
			return apperr.Forbidden("Not authorized to delete this question")
		}

		var answerIDs []uint
		if err := tx.Model(&models.Answer{}).Where("question_id = ?", q.ID).Pluck("id", &answerIDs).Error; err != nil {
			return fmt.Errorf("load answers: %w", err)
		}
		if err := deleteAnswersCascade(tx, answerIDs); err != nil {
			return err
		}

		var aiIDs []uint
		if err := tx.Model(&models.AIAnswer{}).Where("question_id = ?", q.ID).Pluck("id", &aiIDs).Error; err != nil {
			return fmt.Errorf("load ai answers: %w", err)
		}
		if err := deleteVotes(tx, models.VoteTargetAIAnswer, aiIDs); err != nil {
			return err
		}
		if err := tx.Where("question_id = ?", q.ID).Delete(&models.AIAnswer{}).Error; err != nil {
			return fmt.Errorf("delete ai answer: %w", err)
		}

		if err := deleteVotes(tx, models.VoteTargetQuestion, []uint{q.ID}); err != nil {
			return err
		}
		if err := tx.Where("question_id = ?", q.ID).Delete(&models.QuestionView{}).Error; err != nil {
			return fmt.Errorf("delete views: %w", err)
		}
		if err := adjustTagCounts(tx, q.Tags, -1); err != nil {
			return err
		}
		if err := tx.Model(&q).Association("Tags").Clear(); err != nil {
			return fmt.Errorf("clear tags: %w", err)
		}
		if err := tx.Delete(&q).Error; err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("question deleted", zap.Uint("question_id", id), zap.Uint("actor_id", actor.ID))
	return nil
}

// Vote 问题投票
func (s *QuestionService) load(ctx context.Context, id uint) (*models.Question, error) {
	var q models.Question
	if err := s.db.WithContext(ctx).Preload("Author").Preload("Tags").First(&q, id).Error; err != nil {
		return nil, notFound(err, "Question")
	}
	return &q, nil
}

func adjustTagCounts(tx *gorm.DB, tags []models.Tag, delta int) error {
	if len(tags) == 0 {
		return nil
	}
	ids := make([]uint, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	expr := gorm.Expr("question_count + ?", delta)
	if delta < 0 {
		// 计数不减到负数
		expr = gorm.Expr("CASE WHEN question_count + ? < 0 THEN 0 ELSE question_count + ? END", delta, delta)
	}
	if err := tx.Model(&models.Tag{}).Where("id IN ?", ids).UpdateColumn("question_count", expr).Error; err != nil {
		return fmt.Errorf("update tag counts: %w", err)
	}
	return nil
}

// deleteAnswersCascade 删除回答及其评论和所有相关投票
func deleteAnswersCascade(tx *gorm.DB, answerIDs []uint) error {
	if len(answerIDs) == 0 {
		return nil
	}
	var commentIDs []uint
	if err := tx.Model(&models.Comment{}).Where("answer_id IN ?", answerIDs).Pluck("id", &commentIDs).Error; err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	if err := deleteVotes(tx, models.VoteTargetComment, commentIDs); err != nil {
		return err
	}
	if err := tx.Where("answer_id IN ?", answerIDs).Delete(&models.Comment{}).Error; err != nil {
		return fmt.Errorf("delete comments: %w", err)
	}
	if err := deleteVotes(tx, models.VoteTargetAnswer, answerIDs); err != nil {
		return err
	}
	if err := tx.Model(&models.Notification{}).Where("answer_id IN ?", answerIDs).Update("answer_id", nil).Error; err != nil {
		return fmt.Errorf("detach notifications: %w", err)
	}
	if err := tx.Where("id IN ?", answerIDs).Delete(&models.Answer{}).Error; err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	return nil
}
