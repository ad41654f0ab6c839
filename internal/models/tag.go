package models

import (
	"time"
)

type Tag struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"uniqueIndex;size:30;not null" json:"name"` // 小写
	Description   string    `gorm:"size:200" json:"description"`
	CreatorID     *uint     `gorm:"index" json:"creator_id"`
	QuestionCount int       `gorm:"default:0;index" json:"question_count"`
	IsApproved    bool      `gorm:"default:false;index" json:"is_approved"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
