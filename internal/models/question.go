package models

import (
	"time"
)

type Question struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Title            string    `gorm:"size:200;not null" json:"title"`
	Description      string    `gorm:"type:text;not null" json:"description"` // 已清洗的 HTML
	AuthorID         uint      `gorm:"not null;index" json:"author_id"`
	Author           User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Tags             []Tag     `gorm:"many2many:question_tags;" json:"tags"`
	Answers          []Answer  `gorm:"foreignKey:QuestionID" json:"answers,omitempty"`
	AcceptedAnswerID *uint     `gorm:"index" json:"accepted_answer_id"` // 必须指向本问题下的回答
	Views            int       `gorm:"default:0" json:"views"`
	VoteCount        int       `gorm:"default:0" json:"vote_count"` // 冗余字段，始终等于 votes 表求和
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// 非数据库字段，用于查询时填充
	AnswerCount int  `gorm:"-" json:"answer_count"`
	UserVote    *int `gorm:"-" json:"user_vote"`
}

// QuestionView 记录某个访客最近一次浏览时间，用于 24 小时内去重
type QuestionView struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QuestionID uint      `gorm:"not null;uniqueIndex:idx_question_viewer" json:"question_id"`
	ViewerKey  string    `gorm:"size:80;not null;uniqueIndex:idx_question_viewer" json:"-"` // user:<id> 或 ip:<addr>
	UserID     *uint     `gorm:"index" json:"user_id"`
	ViewedAt   time.Time `gorm:"not null;index" json:"viewed_at"`
}
