package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/d60-Lab/bookstore/internal/config"
)

func TestMetrics_RecordsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.OrdersCreated.Add(ctx, 2)
	m.Callbacks.Add(ctx, 1, Attr("outcome", "success"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	got := map[string]int64{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
			for _, dp := range sum.DataPoints {
				got[md.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), got["bookstore.orders.created"])
	assert.Equal(t, int64(1), got["bookstore.payment.callbacks"])
}

func TestInitMetrics_NoEndpointIsNoop(t *testing.T) {
	m, shutdown, err := InitMetrics(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)
	require.NotNil(t, m)
	m.OrdersCreated.Add(context.Background(), 1)
	assert.NoError(t, shutdown(context.Background()))
}
