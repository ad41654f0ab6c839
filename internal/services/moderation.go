package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stackit/internal/apperr"
	"stackit/internal/models"
)

var tagNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9+#.\-]*$`)

// RequireAdmin 非管理员一律 Forbidden
func RequireAdmin(role string) error {
	if role != models.RoleAdmin {
		return apperr.Forbidden("Admin access required")
	}
	return nil
}

// EnsureCanWrite 被封禁的用户不能执行任何写操作
func EnsureCanWrite(user *models.User) error {
	if user == nil {
		return apperr.Unauthorized("Not authorized")
	}
	if user.IsBanned {
		if user.BanReason != nil && *user.BanReason != "" {
			return apperr.Forbidden("Your account has been banned: %s", *user.BanReason)
		}
		return apperr.Forbidden("Your account has been banned")
	}
	return nil
}

// NormalizeTagName 小写、去空格，长度 2-30
func NormalizeTagName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) < 2 || len(name) > 30 {
		return "", apperr.InvalidInput("Tag name must be between 2 and 30 characters")
	}
	if !tagNamePattern.MatchString(name) {
		return "", apperr.InvalidInput("Tag name contains invalid characters")
	}
	return name, nil
}

type ModerationService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewModerationService(db *gorm.DB, logger *zap.Logger) *ModerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModerationService{db: db, logger: logger}
}

// BanUser 封禁/解封，管理员账号不能被封禁
func (s *ModerationService) BanUser(ctx context.Context, targetUserID uint, banned bool, reason string, actingRole string) (*models.User, error) {
	if err := RequireAdmin(actingRole); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, targetUserID).Error; err != nil {
		return nil, notFound(err, "User")
	}
	if user.Role == models.RoleAdmin {
		return nil, apperr.Forbidden("Cannot ban admin users")
	}

	var banReason *string
	if banned {
		r := strings.TrimSpace(reason)
		banReason = &r
	}
	err := s.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"is_banned":  banned,
		"ban_reason": banReason,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update ban state: %w", err)
	}
	user.IsBanned = banned
	user.BanReason = banReason

	s.logger.Info("user ban state changed",
		zap.Uint("user_id", user.ID),
		zap.Bool("banned", banned),
	)
	return &user, nil
}

// UserFilter 管理后台的用户筛选
type UserFilter struct {
	Search   string
	Role     string
	IsBanned *bool
	Page     int
	Limit    int
}

func (s *ModerationService) ListUsers(ctx context.Context, actingRole string, filter UserFilter) ([]models.User, int64, error) {
	if err := RequireAdmin(actingRole); err != nil {
		return nil, 0, err
	}

	query := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.User{})
		if filter.Search != "" {
			like := "%" + strings.ToLower(filter.Search) + "%"
			q = q.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", like, like)
		}
		if filter.Role != "" {
			q = q.Where("role = ?", filter.Role)
		}
		if filter.IsBanned != nil {
			q = q.Where("is_banned = ?", *filter.IsBanned)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	offset, size := Page(filter.Page, filter.Limit)
	var users []models.User
	if err := query().Order("created_at DESC, id DESC").Offset(offset).Limit(size).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

type CountStats struct {
	Total    int64 `json:"total"`
	Banned   int64 `json:"banned,omitempty"`
	NewToday int64 `json:"newToday"`
}

type QuestionStats struct {
	Total      int64 `json:"total"`
	Unanswered int64 `json:"unanswered"`
	NewToday   int64 `json:"newToday"`
}

type AnswerStats struct {
	Total    int64 `json:"total"`
	Accepted int64 `json:"accepted"`
	NewToday int64 `json:"newToday"`
}

type SiteStats struct {
	Users     CountStats    `json:"users"`
	Questions QuestionStats `json:"questions"`
	Answers   AnswerStats   `json:"answers"`
}

// SiteStats 站点统计，"今天"按 UTC 零点计算
func (s *ModerationService) SiteStats(ctx context.Context, actingRole string) (*SiteStats, error) {
	if err := RequireAdmin(actingRole); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	db := s.db.WithContext(ctx)

	var stats SiteStats
	counts := []struct {
		dst   *int64
		model any
		where string
		args  []any
	}{
		{&stats.Users.Total, &models.User{}, "", nil},
		{&stats.Users.Banned, &models.User{}, "is_banned = ?", []any{true}},
		{&stats.Users.NewToday, &models.User{}, "created_at >= ?", []any{today}},
		{&stats.Questions.Total, &models.Question{}, "", nil},
		{&stats.Questions.Unanswered, &models.Question{}, "NOT EXISTS (SELECT 1 FROM answers WHERE answers.question_id = questions.id)", nil},
		{&stats.Questions.NewToday, &models.Question{}, "created_at >= ?", []any{today}},
		{&stats.Answers.Total, &models.Answer{}, "", nil},
		{&stats.Answers.Accepted, &models.Answer{}, "is_accepted = ?", []any{true}},
		{&stats.Answers.NewToday, &models.Answer{}, "created_at >= ?", []any{today}},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.args...)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("site stats: %w", err)
		}
	}
	return &stats, nil
}

// CreateTag 管理员创建的标签自动通过审核
func (s *ModerationService) CreateTag(ctx context.Context, name, description string, creator *models.User) (*models.Tag, error) {
	if creator == nil {
		return nil, apperr.Unauthorized("Not authorized")
	}
	normalized, err := NormalizeTagName(name)
	if err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)
	if len(description) > 200 {
		return nil, apperr.InvalidInput("Tag description cannot exceed 200 characters")
	}

	tag := models.Tag{
		Name:        normalized,
		Description: description,
		CreatorID:   uintPtr(creator.ID),
		IsApproved:  creator.IsAdmin(),
	}
	if err := s.db.WithContext(ctx).Create(&tag).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("Tag already exists")
		}
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return &tag, nil
}

func (s *ModerationService) ApproveTag(ctx context.Context, tagID uint, approved bool, actingRole string) (*models.Tag, error) {
	if err := RequireAdmin(actingRole); err != nil {
		return nil, err
	}
	var tag models.Tag
	if err := s.db.WithContext(ctx).First(&tag, tagID).Error; err != nil {
		return nil, notFound(err, "Tag")
	}
	if err := s.db.WithContext(ctx).Model(&tag).Update("is_approved", approved).Error; err != nil {
		return nil, fmt.Errorf("approve tag: %w", err)
	}
	tag.IsApproved = approved
	return &tag, nil
}

// DeleteTag 删除标签并解除它和问题的关联
func (s *ModerationService) DeleteTag(ctx context.Context, tagID uint, actingRole string) error {
	if err := RequireAdmin(actingRole); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tag models.Tag
		if err := tx.First(&tag, tagID).Error; err != nil {
			return notFound(err, "Tag")
		}
		if err := tx.Exec("DELETE FROM question_tags WHERE tag_id = ?", tag.ID).Error; err != nil {
			return fmt.Errorf("unlink tag: %w", err)
		}
		if err := tx.Delete(&tag).Error; err != nil {
			return fmt.Errorf("delete tag: %w", err)
		}
		return nil
	})
}

// ListTags 按使用次数排序，search 为名称子串过滤
func (s *ModerationService) ListTags(ctx context.Context, search string, page, limit int) ([]models.Tag, int64, error) {
	query := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Tag{})
		if search = strings.ToLower(strings.TrimSpace(search)); search != "" {
			q = q.Where("name LIKE ?", "%"+search+"%")
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count tags: %w", err)
	}
	offset, size := Page(page, limit)
	var tags []models.Tag
	if err := query().Order("question_count DESC, name ASC").Offset(offset).Limit(size).Find(&tags).Error; err != nil {
		return nil, 0, fmt.Errorf("list tags: %w", err)
	}
	return tags, total, nil
}

// SuggestTags 已审核标签的前缀匹配
func (s *ModerationService) SuggestTags(ctx context.Context, prefix string, limit int) ([]models.Tag, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	var tags []models.Tag
	err := s.db.WithContext(ctx).
		Where("is_approved = ? AND name LIKE ?", true, prefix+"%").
		Order("question_count DESC, name ASC").
		Limit(limit).
		Find(&tags).Error
	if err != nil {
		return nil, fmt.Errorf("suggest tags: %w", err)
	}
	return tags, nil
}

// ResolveTags 提交问题时把标签名解析成记录，不存在的自动创建且默认未审核。
// 必须在调用方事务中执行。
func ResolveTags(tx *gorm.DB, names []string, creatorID uint) ([]models.Tag, error) {
	seen := make(map[string]bool, len(names))
	tags := make([]models.Tag, 0, len(names))
	for _, raw := range names {
		name, err := NormalizeTagName(raw)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		var tag models.Tag
		res := tx.Where("name = ?", name).Limit(1).Find(&tag)
		if res.Error != nil {
			return nil, fmt.Errorf("load tag %s: %w", name, res.Error)
		}
		if res.RowsAffected == 0 {
			tag = models.Tag{Name: name, CreatorID: uintPtr(creatorID), IsApproved: false}
			if err := tx.Create(&tag).Error; err != nil {
				return nil, fmt.Errorf("create tag %s: %w", name, err)
			}
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return nil, apperr.InvalidInput("At least one tag is required")
	}
	return tags, nil
}
