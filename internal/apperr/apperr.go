package apperr

import (
	"errors"
	"net/http"
)

// Kind 错误类别，对外作为机器可读的错误码
type Kind string

const (
	Unauthorized     Kind = "Unauthorized"
	RateLimited      Kind = "RateLimited"
	NoFile           Kind = "NoFile"
	InvalidType      Kind = "InvalidType"
	TooLarge         Kind = "TooLarge"
	SuspectedMalware Kind = "SuspectedMalware"
	ProcessingError  Kind = "ProcessingError"
	StorageError     Kind = "StorageError"
	InferenceError   Kind = "InferenceError"
	PersistenceError Kind = "PersistenceError"
	NotFound         Kind = "NotFound"
	Forbidden        Kind = "Forbidden"

	// 账户相关
	BadRequest         Kind = "BadRequest"
	Conflict           Kind = "Conflict"
	InvalidCredentials Kind = "InvalidCredentials"
	TwoFactorRequired  Kind = "TwoFactorRequired"
	InvalidCode        Kind = "InvalidCode"
	AccountInactive    Kind = "AccountInactive"

	// Internal 未分类的内部错误
	Internal Kind = "InternalError"
)

// Error 实现 error，使 errors.Is(err, apperr.TooLarge) 可用
func (k Kind) Error() string { return string(k) }

// Status 错误类别对应的HTTP状态码
func (k Kind) Status() int {
	switch k {
	case Unauthorized, InvalidCredentials, TwoFactorRequired, InvalidCode:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	case NoFile, InvalidType, TooLarge, SuspectedMalware, BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Forbidden, AccountInactive:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error 带类别的错误。Message 面向调用方，Err 仅用于日志
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New 创建错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 包装底层错误
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按类别匹配
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf 取出错误类别，非 *Error 返回 false
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	var k Kind
	if errors.As(err, &k) {
		return k, true
	}
	return "", false
}

// MessageOf 取出面向调用方的消息
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return ""
}
