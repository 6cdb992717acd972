package events

import (
	"context"
	"sync"
	"testing"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/bookstore/internal/model"
)

func TestLowStockMonitor_PublishesBelowThreshold(t *testing.T) {
	m := NewLowStockMonitor(EventBus.New(), 5, nil)

	var mu sync.Mutex
	var got []LowStockEvent
	require.NoError(t, m.Subscribe(func(ev LowStockEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}))

	n := m.Check(context.Background(), []*model.Product{
		{ID: 1, Name: "a", StockQuantity: 4},
		{ID: 2, Name: "b", StockQuantity: 5},
		{ID: 3, Name: "c", StockQuantity: 0},
	})
	m.Wait()

	assert.Equal(t, 2, n)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	ids := []int64{got[0].ProductID, got[1].ProductID}
	assert.ElementsMatch(t, []int64{1, 3}, ids)
	assert.Equal(t, 5, got[0].Threshold)
}

func TestLowStockMonitor_ZeroThresholdDisabled(t *testing.T) {
	m := NewLowStockMonitor(EventBus.New(), 0, nil)
	assert.Equal(t, 0, m.Check(context.Background(), []*model.Product{{ID: 1, StockQuantity: 0}}))
}
