package middleware

import (
	"errors"
	"fmt"

	"defakezone/internal/apperr"
	"defakezone/internal/utils"
	"defakezone/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimit 按用户限流，需在 AuthMiddleware 之后使用
// 计数存储不可用时放行并记录错误。
func RateLimit(limiter ratelimit.Limiter, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := GetUserID(c)
		if !exists {
			utils.Unauthorized(c, "未认证")
			c.Abort()
			return
		}

		err := limiter.Allow(c.Request.Context(), fmt.Sprintf("user:%d", userID))
		switch {
		case err == nil:
		case errors.Is(err, ratelimit.ErrLimited):
			logger.WithField("user_id", userID).Warn("请求过于频繁")
			utils.FailWithError(c, apperr.RateLimited)
			c.Abort()
			return
		default:
			logger.WithError(err).WithField("user_id", userID).Error("限流计数失败，已放行")
		}

		c.Next()
	}
}
