package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/d60-Lab/bookstore/internal/repository"
	"github.com/d60-Lab/bookstore/internal/telemetry"
	"github.com/d60-Lab/bookstore/pkg/logger"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// UnpaidOrderSweeper 定时取消超时未支付的网关订单并回补库存
type UnpaidOrderSweeper struct {
	orders    repository.OrderRepository
	orderSvc  OrderService
	ttl       time.Duration
	batchSize int
	metrics   *telemetry.Metrics
	now       func() time.Time
}

func NewUnpaidOrderSweeper(orders repository.OrderRepository, orderSvc OrderService, ttl time.Duration, batchSize int, metrics *telemetry.Metrics) *UnpaidOrderSweeper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if metrics == nil {
		metrics = telemetry.NoopMetrics()
	}
	return &UnpaidOrderSweeper{orders: orders, orderSvc: orderSvc, ttl: ttl, batchSize: batchSize, metrics: metrics, now: time.Now}
}

// Start 按 schedule 运行；返回停止函数，等待进行中的任务结束
func (w *UnpaidOrderSweeper) Start(schedule string) (func(context.Context) error, error) {
	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, err := w.SweepOnce(ctx); err != nil {
			logger.Warn("unpaid order sweep failed", zap.Int("cancelled", n), zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}
	c.Start()
	return func(ctx context.Context) error {
		select {
		case <-c.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, nil
}

// SweepOnce 处理一批，返回取消的订单数
func (w *UnpaidOrderSweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := w.orders.ListStaleUnpaid(ctx, w.now().Add(-w.ttl), w.batchSize)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, id := range ids {
		// 与支付回调或用户取消并发时订单可能已离开未支付状态
		changed, err := w.orderSvc.ExpireUnpaid(ctx, id)
		if err != nil {
			return cancelled, err
		}
		if changed {
			cancelled++
		}
	}
	if cancelled > 0 {
		w.metrics.SweptOrders.Add(ctx, int64(cancelled))
		logger.Info("unpaid orders cancelled", zap.Int("count", cancelled))
	}
	return cancelled, nil
}
