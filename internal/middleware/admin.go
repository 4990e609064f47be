package middleware

import (
	"defakezone/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminMiddleware 管理员权限中间件，须挂在 AuthMiddleware 之后
func AdminMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			utils.Unauthorized(c, "未认证")
			c.Abort()
			return
		}

		if !IsAdmin(c) {
			logger.WithFields(logrus.Fields{
				"user_id": userID,
				"method":  c.Request.Method,
				"route":   c.FullPath(),
			}).Warn("非管理员访问管理接口")
			utils.Forbidden(c, "需要管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}
