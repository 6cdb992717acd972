// Package events publishes in-process domain events.
package events

import (
	"context"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/telemetry"
	"github.com/d60-Lab/bookstore/pkg/logger"
)

const TopicLowStock = "catalog:low_stock"

// LowStockEvent 库存低于阈值
type LowStockEvent struct {
	ProductID int64
	Name      string
	Stock     int
	Threshold int
	At        time.Time
}

// LowStockMonitor 订阅者异步执行，Check 不阻塞调用方
type LowStockMonitor struct {
	bus       EventBus.Bus
	threshold int
	metrics   *telemetry.Metrics
}

func NewLowStockMonitor(bus EventBus.Bus, threshold int, metrics *telemetry.Metrics) *LowStockMonitor {
	if metrics == nil {
		metrics = telemetry.NoopMetrics()
	}
	return &LowStockMonitor{bus: bus, threshold: threshold, metrics: metrics}
}

// Subscribe 注册处理函数
func (m *LowStockMonitor) Subscribe(fn func(LowStockEvent)) error {
	return m.bus.SubscribeAsync(TopicLowStock, fn, false)
}

// Check 对库存低于阈值的商品发布事件，返回发布数量
func (m *LowStockMonitor) Check(ctx context.Context, products []*model.Product) int {
	if m.threshold <= 0 {
		return 0
	}
	n := 0
	for _, p := range products {
		if p.StockQuantity >= m.threshold {
			continue
		}
		m.bus.Publish(TopicLowStock, LowStockEvent{
			ProductID: p.ID,
			Name:      p.Name,
			Stock:     p.StockQuantity,
			Threshold: m.threshold,
			At:        time.Now(),
		})
		m.metrics.LowStock.Add(ctx, 1)
		n++
	}
	return n
}

// Wait 等待已发布事件的处理函数执行完
func (m *LowStockMonitor) Wait() { m.bus.WaitAsync() }

// LogLowStock 默认订阅者
func LogLowStock(ev LowStockEvent) {
	logger.Warn("low stock",
		zap.Int64("product_id", ev.ProductID),
		zap.String("name", ev.Name),
		zap.Int("stock", ev.Stock),
		zap.Int("threshold", ev.Threshold))
}
