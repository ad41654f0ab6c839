package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stackit/internal/apperr"
	"stackit/internal/middleware"
	"stackit/internal/models"
	"stackit/internal/utils"
)

// OK 统一的成功响应 {"success": true, "data": ...}
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

// Paged 列表响应带分页信息
func Paged(c *gin.Context, data any, total int64, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// Fail 按错误类型映射状态码；未知错误记日志并返回 500
func Fail(c *gin.Context, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": apperr.MessageOf(err)})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

// paramID 解析路径中的 ID，非法时直接返回 400
func paramID(c *gin.Context, name string) (uint, bool) {
	id, ok := utils.ParseID(c.Param(name))
	if !ok {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func currentUser(c *gin.Context) *models.User {
	return middleware.CurrentUser(c)
}

func viewerID(c *gin.Context) uint {
	if u := currentUser(c); u != nil {
		return u.ID
	}
	return 0
}

func pageParams(c *gin.Context) (page, limit int) {
	page = utils.StringToInt(c.DefaultQuery("page", "1"))
	limit = utils.StringToInt(c.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func boolQuery(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}
