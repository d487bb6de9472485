package mailqueue

import "time"

// EmailMessage 表示队列中的一封待发送邮件。
type EmailMessage struct {
	To        string            `json:"to"`       // 接收邮箱
	Subject   string            `json:"subject"`  // 邮件主题
	Template  string            `json:"template"` // 模板名，见 notify 包常量
	Data      map[string]string `json:"data"`     // 模板变量
	Timestamp time.Time         `json:"timestamp"`
	Retry     int               `json:"retry"` // 已重试次数
}

// NewEmailMessage 创建一条新的邮件消息。
func NewEmailMessage(to, subject, template string, data map[string]string) *EmailMessage {
	return &EmailMessage{
		To:        to,
		Subject:   subject,
		Template:  template,
		Data:      data,
		Timestamp: time.Now(),
		Retry:     0,
	}
}
