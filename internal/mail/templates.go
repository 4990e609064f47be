package mail

import (
	"fmt"
	"time"
)

// PasswordResetMessage 密码重置邮件
func PasswordResetMessage(username, code string, ttl time.Duration) (string, string) {
	return "DefakeZone 密码重置",
		fmt.Sprintf("%s 你好，\n\n你的密码重置验证码为 %s，%d 分钟内有效。\n如非本人操作请忽略此邮件。\n", username, code, int(ttl.Minutes()))
}

// ReactivationMessage 账户重新激活邮件
func ReactivationMessage(username, code string, ttl time.Duration) (string, string) {
	return "DefakeZone 账户重新激活",
		fmt.Sprintf("%s 你好，\n\n你的账户激活验证码为 %s，%d 分钟内有效。\n", username, code, int(ttl.Minutes()))
}
