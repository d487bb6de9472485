package notify

import "context"

// 邮件模板名。
const (
	TemplateVerifyOtp    = "verify_otp"    // 注册/重发验证码
	TemplateResetOtp     = "reset_otp"     // 找回密码验证码
	TemplatePasswordDone = "password_done" // 密码重置成功通知
)

// Notifier 定义通知接口。
//
// 发送失败属于基础设施问题，调用方记日志后继续，不反馈给客户端。
type Notifier interface {
	// Send 发送一封模板邮件。
	//
	// 参数:
	//   ctx: 上下文
	//   to: 接收邮箱
	//   subject: 邮件主题
	//   template: 模板名（见上方常量）
	//   data: 模板变量，如 "first_name", "code"
	Send(ctx context.Context, to string, subject string, template string, data map[string]string) error
}
