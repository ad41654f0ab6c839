package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stackit/internal/apperr"
	"stackit/internal/models"
	"stackit/internal/utils"
)

const minPasswordLength = 6

// 与 @mention 的用户名规则一致
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

type AuthService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewAuthService(db *gorm.DB, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{db: db, logger: logger}
}

// Register 创建普通用户，用户名和邮箱都不能重复
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if !usernamePattern.MatchString(username) {
		return nil, apperr.InvalidInput("Username must be 3-30 letters, digits or underscores")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.InvalidInput("Please include a valid email")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.InvalidInput("Password must be %d or more characters", minPasswordLength)
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("email = ? OR username = ?", email, username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if count > 0 {
		return nil, apperr.Conflict("User already exists")
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{Username: username, Email: email, Password: hash, Role: models.RoleUser}
	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("User already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", zap.Uint("user_id", user.ID))
	return &user, nil
}

// Login 校验邮箱和密码；被封禁的用户可以登录，写操作由 EnsureCanWrite 拦截
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("Invalid credentials")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !utils.CheckPasswordHash(password, user.Password) {
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	return &user, nil
}

// Get 按 ID 取用户，供 session 中间件使用
func (s *AuthService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "User")
	}
	return &user, nil
}
