package mailqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Producer 邮件生产者，负责把邮件投进队列。
//
// 实现 notify.Notifier，业务处理器拿到的就是它：
// 对处理器来说"发通知"只是入队，真正的 SMTP 投递在消费者里。
type Producer struct {
	queue  *MailQueue
	logger *slog.Logger
}

// NewProducer 创建一个新的邮件生产者。
//
// 参数:
//   - rdb: Redis 客户端
//   - logger: 日志记录器
//   - streamName: Stream 名称（可选，默认为 DefaultStream）
func NewProducer(rdb *redis.Client, logger *slog.Logger, streamName ...string) *Producer {
	stream := DefaultStream
	if len(streamName) > 0 && streamName[0] != "" {
		stream = streamName[0]
	}

	return &Producer{
		queue:  NewMailQueue(rdb, logger, stream),
		logger: logger,
	}
}

// Send 把邮件放入队列等待投递。
func (p *Producer) Send(ctx context.Context, to string, subject string, template string, data map[string]string) error {
	if to == "" {
		return fmt.Errorf("empty recipient")
	}

	msg := NewEmailMessage(to, subject, template, data)
	if err := p.queue.Publish(ctx, msg); err != nil {
		p.logger.Error("enqueue email failed",
			slog.String("to", to),
			slog.String("template", template),
			slog.String("error", err.Error()))
		return err
	}

	p.logger.Info("email enqueued",
		slog.String("to", to),
		slog.String("template", template))

	return nil
}

// QueueLength 获取当前队列长度。
func (p *Producer) QueueLength(ctx context.Context) (int64, error) {
	return p.queue.StreamInfo(ctx)
}
