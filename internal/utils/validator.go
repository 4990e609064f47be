package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile("^[a-zA-Z0-9_]+$")

var validate *validator.Validate

// InitValidator 初始化验证器
func InitValidator() {
	validate = validator.New()

	validate.RegisterTagNameFunc(jsonFieldName)

	// 注册自定义验证函数
	validate.RegisterValidation("username", validateUsername)
}

// RegisterBindingValidations 在gin的绑定校验器上注册自定义规则
func RegisterBindingValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin绑定校验器类型不符")
	}
	v.RegisterTagNameFunc(jsonFieldName)
	return v.RegisterValidation("username", validateUsername)
}

// GetValidator 获取验证器实例
func GetValidator() *validator.Validate {
	if validate == nil {
		InitValidator()
	}
	return validate
}

// validateUsername 验证用户名
func validateUsername(fl validator.FieldLevel) bool {
	username := fl.Field().String()
	if len(username) < 3 || len(username) > 50 {
		return false
	}
	return usernamePattern.MatchString(username)
}

// ValidateStruct 验证结构体
func ValidateStruct(s interface{}) error {
	v := GetValidator()
	if err := v.Struct(s); err != nil {
		return FormatValidationError(err)
	}
	return nil
}

// FormatValidationError 格式化验证错误，其他错误原样返回
func FormatValidationError(err error) error {
	var messages []string

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := e.Field()
			tag := e.Tag()
			param := e.Param()

			var message string
			switch tag {
			case "required":
				message = fmt.Sprintf("%s是必填字段", field)
			case "min":
				message = fmt.Sprintf("%s长度不能小于%s", field, param)
			case "max":
				message = fmt.Sprintf("%s长度不能大于%s", field, param)
			case "len":
				message = fmt.Sprintf("%s长度必须为%s", field, param)
			case "numeric":
				message = fmt.Sprintf("%s只能包含数字", field)
			case "email":
				message = fmt.Sprintf("%s必须是有效的邮箱地址", field)
			case "username":
				message = fmt.Sprintf("%s只能包含字母、数字和下划线，长度3-50", field)
			default:
				message = fmt.Sprintf("%s验证失败: %s", field, tag)
			}

			messages = append(messages, message)
		}
	}

	if len(messages) > 0 {
		return errors.New(strings.Join(messages, "; "))
	}

	return err
}

// jsonFieldName 使用JSON字段名作为错误提示中的字段名
func jsonFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return f.Name
	}
	return strings.Split(tag, ",")[0]
}
