package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/d60-Lab/bookstore/pkg/logger"
)

// Notifier 订单相关通知，调用方不等待结果
type Notifier interface {
	SendOrderConfirmation(email, name string, orderID int64)
	SendPaymentFailure(email, name string, orderID int64)
}

// Dispatcher 异步发送邮件：池满即丢弃，发送失败只记日志
type Dispatcher struct {
	mailer  Mailer
	pool    *ants.Pool
	timeout time.Duration

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

func NewDispatcher(mailer Mailer, workers int, timeout time.Duration) (*Dispatcher, error) {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true), ants.WithPanicHandler(func(p interface{}) {
		logger.Error("notification worker panic", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, err
	}
	return &Dispatcher{mailer: mailer, pool: pool, timeout: timeout}, nil
}

func (d *Dispatcher) SendOrderConfirmation(email, name string, orderID int64) {
	d.enqueue("order_confirmation", orderID, orderConfirmationMessage(email, name, orderID))
}

func (d *Dispatcher) SendPaymentFailure(email, name string, orderID int64) {
	d.enqueue("payment_failure", orderID, paymentFailureMessage(email, name, orderID))
}

func (d *Dispatcher) enqueue(kind string, orderID int64, msg Message) {
	if msg.To == "" {
		logger.Warn("notification skipped, no recipient", zap.String("kind", kind), zap.Int64("order_id", orderID))
		return
	}
	err := d.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.mailer.Send(ctx, msg); err != nil {
			d.failed.Add(1)
			logger.Warn("notification send failed",
				zap.String("kind", kind), zap.Int64("order_id", orderID), zap.Error(err))
			return
		}
		d.sent.Add(1)
	})
	if err != nil {
		d.dropped.Add(1)
		if errors.Is(err, ants.ErrPoolOverload) {
			logger.Warn("notification pool full, drop", zap.String("kind", kind), zap.Int64("order_id", orderID))
			return
		}
		logger.Warn("notification submit failed", zap.String("kind", kind), zap.Int64("order_id", orderID), zap.Error(err))
	}
}

// Close 等待进行中的发送完成
func (d *Dispatcher) Close(timeout time.Duration) error {
	return d.pool.ReleaseTimeout(timeout)
}

// Stats 发送统计（采样值）
type Stats struct {
	Sent    int64
	Failed  int64
	Dropped int64
	Running int
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
		Running: d.pool.Running(),
	}
}
