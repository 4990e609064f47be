package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// 验证码一次性使用且有效期短，bcrypt cost 取最低值
const codeCost = bcrypt.MinCost

// ErrPasswordTooLong 密码超过 bcrypt 支持的72字节
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// HashPassword 哈希用户密码
func HashPassword(password string) (string, error) {
	return hashSecret(password, bcrypt.DefaultCost)
}

// HashCode 哈希邮件验证码
func HashCode(code string) (string, error) {
	return hashSecret(code, codeCost)
}

func hashSecret(secret string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword 密码或验证码是否与哈希匹配
func CheckPassword(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// IsHashed 是否已是 bcrypt 哈希，配置中的管理员密码可直接填写哈希
func IsHashed(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
