package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"todonest/internal/pkg/metrics"
	"todonest/internal/pkg/notify"

	"github.com/redis/go-redis/v9"
)

// Consumer 邮件消费者，从队列中读取邮件并通过 SMTP 投递。
type Consumer struct {
	queue            *MailQueue
	delivery         notify.Notifier // 真正的投递后端（SMTP）
	logger           *slog.Logger
	groupName        string
	consumerID       string
	blockTime        time.Duration
	batchSize        int64
	pendingIdle      time.Duration
	pendingStart     string
	deadLetterStream string
	maxRetry         int
}

// ConsumerOption 消费者配置选项。
type ConsumerOption func(*Consumer)

// WithBlockTime 设置阻塞等待时间。
func WithBlockTime(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.blockTime = d
	}
}

// WithBatchSize 设置每次读取的消息数量。
func WithBatchSize(size int64) ConsumerOption {
	return func(c *Consumer) {
		c.batchSize = size
	}
}

// WithMaxRetry 设置投递失败的最大重试次数。
func WithMaxRetry(maxRetry int) ConsumerOption {
	return func(c *Consumer) {
		c.maxRetry = maxRetry
	}
}

// NewConsumer 创建一个新的邮件消费者。
//
// 会自动创建消费者组（如果不存在）。
func NewConsumer(rdb *redis.Client, delivery notify.Notifier, logger *slog.Logger, streamName string, groupName string, consumerID string, opts ...ConsumerOption) (*Consumer, error) {
	if groupName == "" {
		return nil, fmt.Errorf("group name is required")
	}
	if consumerID == "" {
		consumerID = fmt.Sprintf("mailer-%d", time.Now().UnixNano())
	}
	if streamName == "" {
		streamName = DefaultStream
	}

	c := &Consumer{
		queue:            NewMailQueue(rdb, logger, streamName),
		delivery:         delivery,
		logger:           logger,
		groupName:        groupName,
		consumerID:       consumerID,
		blockTime:        1 * time.Second,
		batchSize:        10,
		pendingIdle:      1 * time.Minute,
		pendingStart:     "0-0",
		deadLetterStream: streamName + ":dlq",
		maxRetry:         3,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.queue.CreateConsumerGroup(context.Background(), groupName); err != nil {
		return nil, err
	}

	c.logger.Info("mail consumer created",
		slog.String("group", groupName),
		slog.String("consumer_id", consumerID))

	return c, nil
}

// MessageWithID 包含 Stream 消息 ID 的邮件消息。
type MessageWithID struct {
	ID      string
	Message *EmailMessage
}

// Run 循环消费邮件直到 ctx 取消。
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := c.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.logger.Error("read mail queue failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			c.deliver(ctx, msg)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg *MessageWithID) {
	m := msg.Message
	err := c.delivery.Send(ctx, m.To, m.Subject, m.Template, m.Data)
	if err == nil {
		metrics.EmailSentTotal.Inc()
		if ackErr := c.Ack(ctx, msg.ID); ackErr != nil {
			c.logger.Error("ack mail failed", slog.String("msg_id", msg.ID), slog.String("error", ackErr.Error()))
		}
		return
	}

	c.logger.Warn("deliver email failed",
		slog.String("to", m.To),
		slog.String("template", m.Template),
		slog.Int("retry", m.Retry),
		slog.String("error", err.Error()))

	if _, failErr := c.HandleFailure(ctx, msg, err); failErr != nil {
		c.logger.Error("handle mail failure failed", slog.String("msg_id", msg.ID), slog.String("error", failErr.Error()))
	}
}

// Read 从队列中读取邮件消息，优先认领超时未确认的 Pending 消息。
func (c *Consumer) Read(ctx context.Context) ([]*MessageWithID, error) {
	pending, err := c.readPending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return pending, nil
	}

	return c.readNew(ctx)
}

func (c *Consumer) readPending(ctx context.Context) ([]*MessageWithID, error) {
	messages, nextStart, err := c.queue.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.queue.streamName,
		Group:    c.groupName,
		Consumer: c.consumerID,
		MinIdle:  c.pendingIdle,
		Start:    c.pendingStart,
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim failed: %w", err)
	}
	if nextStart != "" {
		c.pendingStart = nextStart
	}

	return c.parseMessages(ctx, messages)
}

func (c *Consumer) readNew(ctx context.Context) ([]*MessageWithID, error) {
	streams, err := c.queue.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.groupName,
		Consumer: c.consumerID,
		Streams:  []string{c.queue.streamName, ">"},
		Count:    c.batchSize,
		Block:    c.blockTime,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup failed: %w", err)
	}

	var messages []redis.XMessage
	for _, stream := range streams {
		messages = append(messages, stream.Messages...)
	}

	return c.parseMessages(ctx, messages)
}

func (c *Consumer) parseMessages(ctx context.Context, messages []redis.XMessage) ([]*MessageWithID, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	parsed := make([]*MessageWithID, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok || data == "" {
			c.logger.Warn("invalid mail message format", slog.String("msg_id", msg.ID))
			c.handlePoisonMessage(ctx, msg.ID, fmt.Sprintf("%v", msg.Values["data"]), "invalid message format")
			continue
		}

		mailMsg, err := parseMessage(data)
		if err != nil {
			c.logger.Error("parse mail message failed",
				slog.String("msg_id", msg.ID),
				slog.String("error", err.Error()))
			c.handlePoisonMessage(ctx, msg.ID, data, err.Error())
			continue
		}

		parsed = append(parsed, &MessageWithID{
			ID:      msg.ID,
			Message: mailMsg,
		})
	}

	return parsed, nil
}

// Ack 确认消息已处理。
func (c *Consumer) Ack(ctx context.Context, msgID string) error {
	acked, err := c.queue.rdb.XAck(ctx, c.queue.streamName, c.groupName, msgID).Result()
	if err != nil {
		return fmt.Errorf("xack failed: %w", err)
	}
	if acked == 0 {
		c.logger.Warn("mail message not acked (may already be acked)", slog.String("msg_id", msgID))
	}
	return nil
}

// FailureAction indicates how a failed message is handled.
type FailureAction string

const (
	FailureActionNone  FailureAction = "none"
	FailureActionRetry FailureAction = "retry"
	FailureActionDLQ   FailureAction = "dlq"
)

// HandleFailure 根据重试次数重新入队或放入死信队列。
func (c *Consumer) HandleFailure(ctx context.Context, msg *MessageWithID, cause error) (FailureAction, error) {
	if msg == nil || msg.Message == nil {
		return FailureActionNone, fmt.Errorf("message is nil")
	}

	retry := msg.Message.Retry + 1
	msg.Message.Retry = retry

	if retry > c.maxRetry {
		metrics.EmailFailedTotal.Inc()
		if err := c.publishDeadLetter(ctx, msg.ID, msg.Message, cause); err != nil {
			return FailureActionDLQ, err
		}
		return FailureActionDLQ, c.Ack(ctx, msg.ID)
	}

	metrics.EmailRetriedTotal.Inc()
	if err := c.queue.Publish(ctx, msg.Message); err != nil {
		return FailureActionRetry, err
	}

	return FailureActionRetry, c.Ack(ctx, msg.ID)
}

func (c *Consumer) handlePoisonMessage(ctx context.Context, msgID string, payload string, reason string) {
	if err := c.publishDeadLetter(ctx, msgID, payload, errors.New(reason)); err != nil {
		c.logger.Error("publish dead letter failed", slog.String("msg_id", msgID), slog.String("error", err.Error()))
	}
	if err := c.Ack(ctx, msgID); err != nil {
		c.logger.Error("ack poison message failed", slog.String("msg_id", msgID), slog.String("error", err.Error()))
	}
}

func (c *Consumer) publishDeadLetter(ctx context.Context, msgID string, payload interface{}, cause error) error {
	raw := payload
	if msg, ok := payload.(*EmailMessage); ok {
		if data, err := json.Marshal(msg); err == nil {
			raw = string(data)
		}
	}

	return c.queue.publishRaw(ctx, c.deadLetterStream, map[string]interface{}{
		"original_id": msgID,
		"payload":     raw,
		"reason":      cause.Error(),
		"failed_at":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Pending 获取待处理的消息数量。
func (c *Consumer) Pending(ctx context.Context) (int64, error) {
	info, err := c.queue.rdb.XPending(ctx, c.queue.streamName, c.groupName).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending failed: %w", err)
	}
	return info.Count, nil
}
