package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"stackit/internal/models"
)

// 声望动作
const (
	ActionAnswerAccepted  = "answer accepted"
	ActionAcceptRevoked   = "accepted answer revoked"
	ActionAcceptDisplaced = "accepted answer replaced"
)

const ReputationAccept = 15

// addReputation 记录明细并更新余额，必须在调用方的事务里执行
func addReputation(tx *gorm.DB, userID uint, amount int, action string) error {
	entry := models.ReputationLog{
		UserID: userID,
		Amount: amount,
		Action: action,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("create reputation log: %w", err)
	}

	if err := tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("reputation", gorm.Expr("reputation + ?", amount)).
		Error; err != nil {
		return fmt.Errorf("update reputation: %w", err)
	}
	return nil
}

// ReputationHistory 最近的声望变动
func ReputationHistory(ctx context.Context, db *gorm.DB, userID uint, limit int) ([]models.ReputationLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var logs []models.ReputationLog
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list reputation logs: %w", err)
	}
	return logs, nil
}
