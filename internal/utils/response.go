package utils

import (
	"net/http"

	"defakezone/internal/apperr"

	"github.com/gin-gonic/gin"
)

// Response 统一响应格式
// 失败时 Error 为机器可读的错误类别。
type Response struct {
	Code    int         `json:"code"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PaginationResponse 分页响应
type PaginationResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Total   int64       `json:"total,omitempty"`
	Page    int         `json:"page,omitempty"`
	PerPage int         `json:"per_page,omitempty"`
}

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: "成功",
		Data:    data,
	})
}

// SuccessWithMessage 成功响应(带消息)
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: message,
		Data:    data,
	})
}

// ErrorKindKey 上下文中记录错误类别的键，供请求日志读取
const ErrorKindKey = "error_kind"

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, kind apperr.Kind, message string) {
	code := kind.Status()
	c.Set(ErrorKindKey, string(kind))
	c.JSON(code, Response{
		Code:    code,
		Error:   string(kind),
		Message: message,
	})
}

// FailWithError 根据错误类别输出错误响应
// 未分类的错误统一返回500，不向调用方暴露内部信息。
func FailWithError(c *gin.Context, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		ErrorResponse(c, apperr.Internal, "服务器内部错误")
		return
	}
	message := apperr.MessageOf(err)
	if message == "" {
		message = defaultMessages[kind]
	}
	ErrorResponse(c, kind, message)
}

var defaultMessages = map[apperr.Kind]string{
	apperr.Unauthorized:       "未认证",
	apperr.RateLimited:        "请求过于频繁，请稍后再试",
	apperr.NoFile:             "未上传文件",
	apperr.InvalidType:        "不支持的文件类型",
	apperr.TooLarge:           "文件过大",
	apperr.SuspectedMalware:   "文件内容可疑",
	apperr.ProcessingError:    "图片处理失败",
	apperr.StorageError:       "文件保存失败",
	apperr.InferenceError:     "检测失败",
	apperr.PersistenceError:   "保存检测结果失败",
	apperr.NotFound:           "资源不存在",
	apperr.Forbidden:          "无权访问",
	apperr.BadRequest:         "请求参数错误",
	apperr.Conflict:           "资源已存在",
	apperr.InvalidCredentials: "用户名或密码错误",
	apperr.TwoFactorRequired:  "需要两步验证码",
	apperr.InvalidCode:        "验证码无效或已过期",
	apperr.AccountInactive:    "账户已停用",
	apperr.Internal:           "服务器内部错误",
}

// BadRequest 400错误
func BadRequest(c *gin.Context, message string) {
	ErrorResponse(c, apperr.BadRequest, message)
}

// Unauthorized 401错误
func Unauthorized(c *gin.Context, message string) {
	ErrorResponse(c, apperr.Unauthorized, message)
}

// Forbidden 403错误
func Forbidden(c *gin.Context, message string) {
	ErrorResponse(c, apperr.Forbidden, message)
}

// PaginatedResponse 分页响应
func PaginatedResponse(c *gin.Context, data interface{}, total int64, page int, perPage int) {
	c.JSON(http.StatusOK, PaginationResponse{
		Code:    200,
		Message: "成功",
		Data:    data,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}
