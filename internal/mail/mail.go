// Package mail 发送验证码等事务性邮件。
package mail

import (
	"context"
	"fmt"
	"time"

	"defakezone/internal/config"

	"github.com/sirupsen/logrus"
	gomail "github.com/wneessen/go-mail"
)

// Mailer 邮件发送接口
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer 仅将邮件内容写入日志，用于开发环境
type LogMailer struct {
	logger logrus.FieldLogger
}

// NewLogMailer 创建日志邮件发送器
func NewLogMailer(logger logrus.FieldLogger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info(body)
	return nil
}

// SMTPMailer 通过SMTP发送邮件
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

// NewSMTPMailer 创建SMTP邮件发送器
func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(10 * time.Second),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("无效的发件人: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("无效的收件人: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

// NewFromConfig 按配置创建邮件发送器
func NewFromConfig(cfg config.MailConfig, logger logrus.FieldLogger) (Mailer, error) {
	switch cfg.Backend {
	case "", "log":
		return NewLogMailer(logger), nil
	case "smtp":
		return NewSMTPMailer(cfg)
	default:
		return nil, fmt.Errorf("不支持的邮件后端: %s", cfg.Backend)
	}
}
