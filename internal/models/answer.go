package models

import (
	"time"
)

type Answer struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	AuthorID   uint       `gorm:"not null;index" json:"author_id"`
	Author     User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	QuestionID uint       `gorm:"not null;index" json:"question_id"`
	VoteCount  int        `gorm:"default:0" json:"vote_count"`
	IsAccepted bool       `gorm:"default:false" json:"is_accepted"` // 每个问题至多一个，见 db 中的部分唯一索引
	AcceptedAt *time.Time `json:"accepted_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	UserVote *int `gorm:"-" json:"user_vote"`
}
