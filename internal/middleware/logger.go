package middleware

import (
	"time"

	"defakezone/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// quietPaths 成功时只以 Debug 级别记录的路径
var quietPaths = map[string]bool{
	"/health": true,
}

// LoggerMiddleware 请求日志中间件
// 记录路由模板而不是原始路径，错误响应附带错误类型。
func LoggerMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		fields := logrus.Fields{
			"status":     status,
			"method":     c.Request.Method,
			"route":      route,
			"path":       c.Request.URL.Path,
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
			"latency_ms": time.Since(start).Milliseconds(),
			"length":     c.Writer.Size(),
		}
		if query := c.Request.URL.RawQuery; query != "" {
			fields["query"] = query
		}
		if userID, ok := GetUserID(c); ok {
			fields["user_id"] = userID
		}
		if username, ok := GetUsername(c); ok {
			fields["username"] = username
		}
		if kind := c.GetString(utils.ErrorKindKey); kind != "" {
			fields["error"] = kind
		}

		entry := logger.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("HTTP Request")
		case status >= 400:
			entry.Warn("HTTP Request")
		case quietPaths[route]:
			entry.Debug("HTTP Request")
		default:
			entry.Info("HTTP Request")
		}
	}
}
