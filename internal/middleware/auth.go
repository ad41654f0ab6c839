package middleware

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"stackit/internal/apperr"
	"stackit/internal/models"
	"stackit/internal/services"
)

const (
	CheckUserKey   = "user"
	SessionUserKey = "user_id"
)

// UserLoader 按 ID 取用户，由 services.AuthService 实现
type UserLoader interface {
	Get(ctx context.Context, id uint) (*models.User, error)
}

// LoadUser 从 session 取出当前用户放入 context，取不到时按匿名处理
func LoadUser(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if id, ok := session.Get(SessionUserKey).(uint); ok && id != 0 {
			user, err := users.Get(c.Request.Context(), id)
			if err == nil {
				c.Set(CheckUserKey, user)
			} else if apperr.Is(err, apperr.KindNotFound) {
				// 用户已被删除，清掉失效的 session
				session.Delete(SessionUserKey)
				_ = session.Save()
			}
		}
		c.Next()
	}
}

// CurrentUser 未登录时返回 nil
func CurrentUser(c *gin.Context) *models.User {
	if u, exists := c.Get(CheckUserKey); exists {
		if user, ok := u.(*models.User); ok {
			return user
		}
	}
	return nil
}

// AuthRequired 必须登录
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized, please log in"})
			return
		}
		c.Next()
	}
}

// AdminRequired 必须是管理员
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized, please log in"})
			return
		}
		if err := services.RequireAdmin(user.Role); err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(apperr.KindOf(err)), gin.H{"success": false, "message": apperr.MessageOf(err)})
			return
		}
		c.Next()
	}
}

// NotBanned 被封禁用户不能执行写操作
func NotBanned() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := services.EnsureCanWrite(CurrentUser(c)); err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(apperr.KindOf(err)), gin.H{"success": false, "message": apperr.MessageOf(err)})
			return
		}
		c.Next()
	}
}
