package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/d60-Lab/bookstore/internal/config"
)

const meterName = "github.com/d60-Lab/bookstore"

// Metrics 业务指标
type Metrics struct {
	OrdersCreated   metric.Int64Counter
	OrdersCancelled metric.Int64Counter
	Revenue         metric.Float64Counter
	Callbacks       metric.Int64Counter
	LowStock        metric.Int64Counter
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter
	SweptOrders     metric.Int64Counter
}

// NewMetrics 基于给定 Meter 创建指标
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	if m.OrdersCreated, err = meter.Int64Counter("bookstore.orders.created",
		metric.WithDescription("Orders created")); err != nil {
		return nil, err
	}
	if m.OrdersCancelled, err = meter.Int64Counter("bookstore.orders.cancelled",
		metric.WithDescription("Orders cancelled, including sweeper cancellations")); err != nil {
		return nil, err
	}
	if m.Revenue, err = meter.Float64Counter("bookstore.revenue",
		metric.WithDescription("Settled payment amount"), metric.WithUnit("{currency}")); err != nil {
		return nil, err
	}
	if m.Callbacks, err = meter.Int64Counter("bookstore.payment.callbacks",
		metric.WithDescription("Gateway callbacks by outcome")); err != nil {
		return nil, err
	}
	if m.LowStock, err = meter.Int64Counter("bookstore.inventory.low_stock",
		metric.WithDescription("Low stock events emitted")); err != nil {
		return nil, err
	}
	if m.CacheHits, err = meter.Int64Counter("bookstore.cache.hits"); err != nil {
		return nil, err
	}
	if m.CacheMisses, err = meter.Int64Counter("bookstore.cache.misses"); err != nil {
		return nil, err
	}
	if m.SweptOrders, err = meter.Int64Counter("bookstore.sweeper.cancelled"); err != nil {
		return nil, err
	}
	return m, nil
}

// NoopMetrics 测试及未配置导出时使用
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(meterName))
	return m
}

// InitMetrics 配置了 OTLP endpoint 时导出到 collector，否则返回 noop
func InitMetrics(ctx context.Context, cfg config.TelemetryConfig) (*Metrics, func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		return NoopMetrics(), func(context.Context) error { return nil }, nil
	}

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetrichttp.WithURLPath("/v1/metrics"),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, nil, err
	}

	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)

	m, err := NewMetrics(mp.Meter(meterName))
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	return m, mp.Shutdown, nil
}

// Attr 简写
func Attr(key, value string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(key, value))
}
