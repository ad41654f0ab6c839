package models

import (
	"time"
)

// VoteTarget 可被投票的实体类型
type VoteTarget string

const (
	VoteTargetQuestion VoteTarget = "question"
	VoteTargetAnswer   VoteTarget = "answer"
	VoteTargetComment  VoteTarget = "comment"
	VoteTargetAIAnswer VoteTarget = "ai_answer"
)

func (t VoteTarget) Valid() bool {
	switch t {
	case VoteTargetQuestion, VoteTargetAnswer, VoteTargetComment, VoteTargetAIAnswer:
		return true
	}
	return false
}

// Vote 所有实体共用一张投票表，(target_type, target_id, user_id) 唯一
type Vote struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	TargetType VoteTarget `gorm:"type:varchar(20);not null;uniqueIndex:idx_vote_target_user,priority:1;index:idx_vote_target,priority:1" json:"target_type"`
	TargetID   uint       `gorm:"not null;uniqueIndex:idx_vote_target_user,priority:2;index:idx_vote_target,priority:2" json:"target_id"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_vote_target_user,priority:3;index" json:"user_id"`
	Value      int        `gorm:"not null" json:"value"` // 1 or -1
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
