package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email      string    `gorm:"uniqueIndex;not null" json:"email"`
	Password   string    `gorm:"not null" json:"-"`                           // Hash
	Role       string    `gorm:"size:20;default:'user';not null" json:"role"` // user, admin
	IsBanned   bool      `gorm:"default:false;index" json:"is_banned"`
	BanReason  *string   `gorm:"size:500" json:"ban_reason"` // 解封时清空
	Reputation int       `gorm:"default:0" json:"reputation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
