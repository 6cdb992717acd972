package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/repository"
)

// racedOrders 模拟查询之后订单被并发处理：列表里带上已离开未支付状态的订单
type racedOrders struct {
	repository.OrderRepository
	extra []int64
}

func (r racedOrders) ListStaleUnpaid(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	ids, err := r.OrderRepository.ListStaleUnpaid(ctx, before, limit)
	return append(ids, r.extra...), err
}

func TestSweeper_CancelsStaleGatewayOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)

	stale := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 2})
	_, err := h.payments.InitiatePayment(ctx, asUser(u), stale.OrderID, model.PaymentMethodGateway, "")
	require.NoError(t, err)

	cod := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})
	_, err = h.payments.InitiatePayment(ctx, asUser(u), cod.OrderID, model.PaymentMethodCOD, "")
	require.NoError(t, err)

	paid := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})
	pay, err := h.payments.InitiatePayment(ctx, asUser(u), paid.OrderID, model.PaymentMethodGateway, "")
	require.NoError(t, err)
	_, err = h.payments.HandleGatewayCallback(ctx, callback(pay.TxnRef, paid.TotalAmount, "00"))
	require.NoError(t, err)
	require.Equal(t, 6, h.product(t, p.ID).StockQuantity)

	w := NewUnpaidOrderSweeper(h.orderRep, h.orders, time.Hour, 10, nil)
	w.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	n, err := w.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.OrderStatusCancelled, h.order(t, stale.OrderID).Status)
	assert.Equal(t, model.OrderStatusConfirmed, h.order(t, cod.OrderID).Status)
	assert.Equal(t, model.OrderStatusPaid, h.order(t, paid.OrderID).Status)
	assert.Equal(t, 8, h.product(t, p.ID).StockQuantity)

	n, err = w.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_CountsOnlyOrdersItCancelled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)

	stale := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})
	_, err := h.payments.InitiatePayment(ctx, asUser(u), stale.OrderID, model.PaymentMethodGateway, "")
	require.NoError(t, err)

	raced := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 2})
	_, err = h.payments.InitiatePayment(ctx, asUser(u), raced.OrderID, model.PaymentMethodGateway, "")
	require.NoError(t, err)
	_, err = h.orders.CancelOrder(ctx, asUser(u), raced.OrderID)
	require.NoError(t, err)
	require.Equal(t, 9, h.product(t, p.ID).StockQuantity)

	w := NewUnpaidOrderSweeper(racedOrders{OrderRepository: h.orderRep, extra: []int64{raced.OrderID}}, h.orders, time.Hour, 10, nil)
	w.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	n, err := w.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.OrderStatusCancelled, h.order(t, stale.OrderID).Status)
	assert.Equal(t, 10, h.product(t, p.ID).StockQuantity, "each order restocked once")

	changed, err := h.orders.ExpireUnpaid(ctx, stale.OrderID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSweeper_RecentOrdersKept(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})
	_, err := h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodGateway, "")
	require.NoError(t, err)

	w := NewUnpaidOrderSweeper(h.orderRep, h.orders, time.Hour, 10, nil)
	n, err := w.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.OrderStatusPending, h.order(t, o.OrderID).Status)
}

func TestSweeper_StartRejectsBadSchedule(t *testing.T) {
	h := newHarness(t)
	w := NewUnpaidOrderSweeper(h.orderRep, h.orders, time.Hour, 10, nil)
	_, err := w.Start("not a schedule")
	assert.Error(t, err)

	stop, err := w.Start("@every 1h")
	require.NoError(t, err)
	assert.NoError(t, stop(context.Background()))
}
