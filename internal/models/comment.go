package models

import (
	"time"
)

// DeletedCommentContent 软删除后评论内容的占位符
const DeletedCommentContent = "[deleted]"

type Comment struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Content   string     `gorm:"size:1000;not null" json:"content"`
	AuthorID  uint       `gorm:"not null;index" json:"author_id"`
	Author    User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	AnswerID  uint       `gorm:"not null;index:idx_comment_answer_created" json:"answer_id"`
	ParentID  *uint      `gorm:"index" json:"parent_id"` // Nullable for top-level comments
	VoteCount int        `gorm:"default:0" json:"vote_count"`
	IsDeleted bool       `gorm:"default:false" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at"` // 普通时间字段，不是 gorm.DeletedAt，行永远保留
	CreatedAt time.Time  `gorm:"index:idx_comment_answer_created" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
