package db

import (
	"context"
	"fmt"
	"time"

	"stackit/internal/config"
	"stackit/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 建立 Postgres 连接并设置连接池，调用方负责注入到各个 service
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true, // 唯一索引冲突 -> gorm.ErrDuplicatedKey
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	conn, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return conn, nil
}

// Migrate 自动迁移所有表，并补充 GORM 标签表达不了的约束
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.User{},
		&models.Tag{},
		&models.Question{},
		&models.QuestionView{},
		&models.Answer{},
		&models.Comment{},
		&models.Vote{},
		&models.Notification{},
		&models.ReputationLog{},
		&models.AIAnswer{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// 每个问题至多一个被采纳的回答（Postgres 与 SQLite 都支持部分索引）
	if err := conn.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_answers_one_accepted ON answers (question_id) WHERE is_accepted",
	).Error; err != nil {
		return fmt.Errorf("create accepted answer index: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool
func Close(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// SeedTags 初始化常用标签，已有数据时跳过
func SeedTags(conn *gorm.DB, log *zap.Logger) {
	var count int64
	conn.Model(&models.Tag{}).Count(&count)
	if count > 0 {
		log.Debug("tags already seeded, skipping")
		return
	}

	tags := []models.Tag{
		{Name: "javascript", Description: "Questions about JavaScript programming language", IsApproved: true},
		{Name: "react", Description: "Questions about React.js library", IsApproved: true},
		{Name: "nodejs", Description: "Questions about Node.js runtime", IsApproved: true},
		{Name: "python", Description: "Questions about Python programming language", IsApproved: true},
		{Name: "go", Description: "Questions about the Go programming language", IsApproved: true},
		{Name: "database", Description: "Questions about databases and data storage", IsApproved: true},
		{Name: "css", Description: "Questions about CSS styling", IsApproved: true},
		{Name: "html", Description: "Questions about HTML markup", IsApproved: true},
	}

	for _, tag := range tags {
		if err := conn.Create(&tag).Error; err != nil {
			log.Warn("failed to create tag", zap.String("tag", tag.Name), zap.Error(err))
		}
	}
	log.Info("initial tags created", zap.Int("count", len(tags)))
}
