package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeAnswer       NotificationType = "answer"
	NotificationTypeComment      NotificationType = "comment"
	NotificationTypeMention      NotificationType = "mention"
	NotificationTypeAnnouncement NotificationType = "announcement"
	NotificationTypeAccept       NotificationType = "accept"
)

type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RecipientID uint             `gorm:"not null;index" json:"recipient_id"` // Receiver
	Recipient   User             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ActorID     *uint            `gorm:"index" json:"actor_id"` // Sender
	Actor       *User            `gorm:"foreignKey:ActorID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"actor,omitempty"`
	Type        NotificationType `gorm:"type:varchar(20);not null" json:"type"`
	QuestionID  *uint            `gorm:"index" json:"question_id"`
	AnswerID    *uint            `json:"answer_id"`
	Message     string           `gorm:"type:text;not null" json:"message"`
	Read        bool             `gorm:"column:is_read;default:false;index" json:"read"`
	CreatedAt   time.Time        `json:"created_at"`
}
