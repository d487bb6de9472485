package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"
)

// SMTPConfig 邮件发送配置。
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Pass     string `json:"pass"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
}

// EmailNotifier 通过 SMTP 发送模板邮件。
type EmailNotifier struct {
	cfg    *SMTPConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *SMTPConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// Send 渲染模板并发送邮件。
func (n *EmailNotifier) Send(ctx context.Context, to string, subject string, template string, data map[string]string) error {
	if n.cfg.Host == "" || n.cfg.User == "" || n.cfg.From == "" {
		return fmt.Errorf("email config missing")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}

	body, err := renderTemplate(template, data)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	from := n.cfg.From
	if n.cfg.FromName != "" {
		from = m.FormatAddress(n.cfg.From, n.cfg.FromName)
	}
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.Host, n.cfg.Port, n.cfg.User, n.cfg.Pass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email sent", slog.String("to", to), slog.String("template", template))
	return nil
}

func renderTemplate(template string, data map[string]string) (string, error) {
	firstName := data["first_name"]
	if firstName == "" {
		firstName = "there"
	}

	switch template {
	case TemplateVerifyOtp:
		return buildOtpBody("验证你的邮箱", firstName, data["code"],
			"输入这个验证码完成注册，5 分钟内有效。"), nil
	case TemplateResetOtp:
		return buildOtpBody("重置密码", firstName, data["code"],
			"输入这个验证码重置密码，5 分钟内有效。如果不是你本人操作，请忽略这封邮件。"), nil
	case TemplatePasswordDone:
		return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>密码已重置</h2>
    <p>Hi %s，你的账户密码刚刚被重置。如果不是你本人操作，请立即联系我们。</p>
  </div>
</body>
</html>`, firstName), nil
	default:
		return "", fmt.Errorf("unknown email template: %s", template)
	}
}

func buildOtpBody(title, firstName, code, hint string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>%s</h2>
    <p>Hi %s，你的验证码是：</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 3px;">%s</div>
    <p>%s</p>
  </div>
</body>
</html>`, title, firstName, code, hint)
}
