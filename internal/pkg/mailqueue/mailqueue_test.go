package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"todonest/internal/pkg/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeDelivery struct {
	sendFunc func(ctx context.Context, to, subject, template string, data map[string]string) error
	calls    int
}

func (f *fakeDelivery) Send(ctx context.Context, to, subject, template string, data map[string]string) error {
	f.calls++
	if f.sendFunc != nil {
		return f.sendFunc(ctx, to, subject, template, data)
	}
	return nil
}

func newTestQueue(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestProducerConsumer_Flow(t *testing.T) {
	metrics.InitMetrics()
	rdb, cleanup := newTestQueue(t)
	defer cleanup()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	producer := NewProducer(rdb, logger, "test:mail")
	if err := producer.Send(ctx, "a@x.com", "Verify your email", "verify_otp", map[string]string{"code": "123456"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	length, err := producer.QueueLength(ctx)
	if err != nil {
		t.Fatalf("QueueLength failed: %v", err)
	}
	if length != 1 {
		t.Fatalf("expected 1 queued message, got %d", length)
	}

	delivery := &fakeDelivery{}
	consumer, err := NewConsumer(rdb, delivery, logger, "test:mail", "mailers", "mailer-1",
		WithBlockTime(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewConsumer failed: %v", err)
	}

	msgs, err := consumer.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	msg := msgs[0].Message
	if msg.To != "a@x.com" || msg.Template != "verify_otp" || msg.Data["code"] != "123456" {
		t.Fatalf("message data mismatch: %+v", msg)
	}

	if err := consumer.Ack(ctx, msgs[0].ID); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	pending, err := consumer.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected no pending messages after ack, got %d", pending)
	}
}

func TestConsumer_RetryThenDeadLetter(t *testing.T) {
	metrics.InitMetrics()
	rdb, cleanup := newTestQueue(t)
	defer cleanup()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	producer := NewProducer(rdb, logger, "test:mail")
	if err := producer.Send(ctx, "b@x.com", "Reset password", "reset_otp", map[string]string{"code": "654321"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	delivery := &fakeDelivery{
		sendFunc: func(ctx context.Context, to, subject, template string, data map[string]string) error {
			return errors.New("smtp down")
		},
	}
	consumer, err := NewConsumer(rdb, delivery, logger, "test:mail", "mailers", "mailer-1",
		WithBlockTime(10*time.Millisecond), WithMaxRetry(1))
	if err != nil {
		t.Fatalf("NewConsumer failed: %v", err)
	}

	// 第一次失败：重新入队
	msgs, err := consumer.Read(ctx)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Read failed: msgs=%d err=%v", len(msgs), err)
	}
	action, err := consumer.HandleFailure(ctx, msgs[0], fmt.Errorf("smtp down"))
	if err != nil {
		t.Fatalf("HandleFailure failed: %v", err)
	}
	if action != FailureActionRetry {
		t.Fatalf("expected retry, got %s", action)
	}

	// 第二次失败：超过 maxRetry，进入死信队列
	msgs, err = consumer.Read(ctx)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Read after retry failed: msgs=%d err=%v", len(msgs), err)
	}
	if msgs[0].Message.Retry != 1 {
		t.Fatalf("expected retry count 1, got %d", msgs[0].Message.Retry)
	}
	action, err = consumer.HandleFailure(ctx, msgs[0], fmt.Errorf("smtp down"))
	if err != nil {
		t.Fatalf("HandleFailure failed: %v", err)
	}
	if action != FailureActionDLQ {
		t.Fatalf("expected dlq, got %s", action)
	}

	dlqLen, err := rdb.XLen(ctx, "test:mail:dlq").Result()
	if err != nil {
		t.Fatalf("xlen dlq failed: %v", err)
	}
	if dlqLen != 1 {
		t.Fatalf("expected 1 dead letter, got %d", dlqLen)
	}
}
