package handler

import (
	"strconv"
	"strings"
	"time"

	"breakfastledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
)

const (
	ctxKeyUserID = "userID"
	ctxKeyRoles  = "roles"

	HeaderUserID = "X-User-ID"
	HeaderRoles  = "X-User-Roles"
)

// 管理端角色
var adminRoles = map[string]bool{
	"SUPER_ADMIN": true,
	"ADMIN":       true,
	"MANAGER":     true,
	"GRADE_ADMIN": true,
}

// LoggerMiddleware 访问日志
func LoggerMiddleware(logger log.Logger) gin.HandlerFunc {
	helper := log.NewHelper(log.With(logger, "module", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if query != "" {
			path = path + "?" + query
		}

		helper.Infow(
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware(logger log.Logger) gin.HandlerFunc {
	helper := log.NewHelper(log.With(logger, "module", "http"))
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				helper.Errorf("[PANIC] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-User-ID, X-User-Roles")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AuthMiddleware 读取网关注入的用户身份
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
		if err != nil || userID <= 0 {
			response.Unauthorized(c, "未登录")
			return
		}

		var roles []string
		for _, r := range strings.Split(c.GetHeader(HeaderRoles), ",") {
			if r = strings.TrimSpace(strings.ToUpper(r)); r != "" {
				roles = append(roles, r)
			}
		}

		c.Set(ctxKeyUserID, userID)
		c.Set(ctxKeyRoles, roles)
		c.Next()
	}
}

// AdminMiddleware 仅允许管理端角色访问
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			response.Forbidden(c, "需要管理员权限")
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(ctxKeyUserID)
}

func isAdmin(c *gin.Context) bool {
	roles, _ := c.Get(ctxKeyRoles)
	list, _ := roles.([]string)
	for _, r := range list {
		if adminRoles[r] {
			return true
		}
	}
	return false
}
