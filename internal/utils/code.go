package utils

import (
	"crypto/rand"
	"math/big"
)

// GenerateNumericCode 生成指定位数的随机数字验证码
func GenerateNumericCode(digits int) (string, error) {
	buf := make([]byte, digits)
	ten := big.NewInt(10)
	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}
