package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stackit/internal/apperr"
	"stackit/internal/models"
)

// forUpdate 在 Postgres 上给读加行锁；SQLite 整库单写者，不支持 FOR UPDATE
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func voteLockKey(target models.VoteTarget, id uint) string {
	return fmt.Sprintf("vote:%s:%d", target, id)
}

func acceptLockKey(questionID uint) string {
	return fmt.Sprintf("accept:question:%d", questionID)
}

// notFound 把 gorm.ErrRecordNotFound 翻译成领域错误，其余错误原样包装
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s not found", what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func uintPtr(v uint) *uint {
	return &v
}

// Page 规范化分页参数
func Page(page, limit int) (offset, size int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return (page - 1) * limit, limit
}
