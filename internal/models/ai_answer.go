package models

import (
	"time"
)

// AIAnswer 每个问题至多一条 AI 回答
type AIAnswer struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	QuestionID     uint      `gorm:"uniqueIndex;not null" json:"question_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`      // 模型返回的 markdown
	ContentHTML    string    `gorm:"type:text;not null" json:"content_html"` // 渲染并清洗后的 HTML
	Confidence     float64   `gorm:"default:0.7" json:"confidence"`
	HelpfulVotes   int       `gorm:"default:0" json:"helpful_votes"`
	UnhelpfulVotes int       `gorm:"default:0" json:"unhelpful_votes"`
	VoteCount      int       `gorm:"default:0" json:"vote_count"` // helpful - unhelpful
	Model          string    `gorm:"size:100" json:"model"`
	GeneratedAt    time.Time `json:"generated_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
