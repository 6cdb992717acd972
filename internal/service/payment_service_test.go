package service

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/bookstore/internal/events"
	"github.com/d60-Lab/bookstore/internal/gateway"
	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/pkg/apperr"
)

func TestGatewayPayment_SuccessIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 2})

	res, err := h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodGateway, "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, res.PaymentURL)
	active, err := h.payRep.GetActiveByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, active.Status)

	params := callback(res.TxnRef, o.TotalAmount, "00")
	for i := 0; i < 2; i++ {
		cb, err := h.payments.HandleGatewayCallback(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, gateway.OutcomeSuccess, cb.Outcome)
		assert.Equal(t, o.OrderID, cb.OrderID)
		assert.Equal(t, i == 1, cb.Duplicate)
	}

	assert.Equal(t, model.OrderStatusPaid, h.order(t, o.OrderID).Status)
	n, err := h.payRep.CountByStatus(ctx, o.OrderID, model.PaymentStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	confirmed, _ := h.notifier.counts()
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 8, h.product(t, p.ID).StockQuantity, "payment never touches stock")
}

func TestGatewayPayment_ConcurrentDuplicateCallbacks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})

	params := callback(unknownRef(o.OrderID), o.TotalAmount, "00")
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb, err := h.payments.HandleGatewayCallback(ctx, params)
			assert.NoError(t, err)
			assert.Equal(t, gateway.OutcomeSuccess, cb.Outcome)
		}()
	}
	wg.Wait()

	payments, err := h.payRep.ListByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	require.Len(t, payments, 1, "no payment initiated, so exactly one created on success")
	assert.Equal(t, model.PaymentStatusSuccess, payments[0].Status)
	confirmed, _ := h.notifier.counts()
	assert.Equal(t, 1, confirmed)
}

func TestGatewayCallback_RejectsWithoutMutation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})

	tampered := callback(unknownRef(o.OrderID), o.TotalAmount, "00")
	tampered.Set("vnp_ResponseCode", "01")

	wrongAmount := callback(unknownRef(o.OrderID), decimal.NewFromInt(1000), "00")

	unknown := callback(unknownRef(777), o.TotalAmount, "00")

	garbage := gateway.SignParams(testHashSecret, url.Values{
		"vnp_Amount":       {"100"},
		"vnp_TxnRef":       {"not-a-number"},
		"vnp_ResponseCode": {"00"},
	})

	tests := []struct {
		name   string
		params url.Values
		want   gateway.Outcome
		reason string
	}{
		{"bad signature", tampered, gateway.OutcomeInvalid, "invalid signature"},
		{"amount mismatch", wrongAmount, gateway.OutcomeInvalid, "amount mismatch"},
		{"unknown order", unknown, gateway.OutcomeFailed, "unknown order"},
		{"unparseable ref", garbage, gateway.OutcomeFailed, "unknown order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, err := h.payments.HandleGatewayCallback(ctx, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cb.Outcome)
			assert.Equal(t, tt.reason, cb.Reason)
		})
	}

	assert.Equal(t, model.OrderStatusPending, h.order(t, o.OrderID).Status)
	payments, err := h.payRep.ListByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Empty(t, payments)
	confirmed, failed := h.notifier.counts()
	assert.Zero(t, confirmed)
	assert.Zero(t, failed)
}

func TestGatewayPayment_FailureRetryThenSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})

	first, err := h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodGateway, "")
	require.NoError(t, err)

	declined := callback(first.TxnRef, o.TotalAmount, "24")
	for i := 0; i < 2; i++ {
		cb, err := h.payments.HandleGatewayCallback(ctx, declined)
		require.NoError(t, err)
		assert.Equal(t, gateway.OutcomeFailed, cb.Outcome)
	}
	assert.Equal(t, model.OrderStatusPaymentFailed, h.order(t, o.OrderID).Status)
	_, failed := h.notifier.counts()
	assert.Equal(t, 1, failed, "repeated failure callback is a no-op")

	res, err := h.payments.RetryPayment(ctx, asUser(u), o.OrderID, "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.PaymentURL)

	active, err := h.payRep.GetActiveByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, active.Status)
	assert.Equal(t, res.PaymentID, active.ID)

	// 待支付记录在再次重试时沿用
	again, err := h.payments.RetryPayment(ctx, asUser(u), o.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, res.PaymentID, again.PaymentID)
	assert.NotEqual(t, res.TxnRef, again.TxnRef)

	cb, err := h.payments.HandleGatewayCallback(ctx, callback(again.TxnRef, o.TotalAmount, "00"))
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSuccess, cb.Outcome)
	assert.Equal(t, model.OrderStatusPaid, h.order(t, o.OrderID).Status)

	all, err := h.payRep.ListByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, model.PaymentStatusFailed, all[0].Status)
	assert.True(t, all[0].Superseded)
	assert.Equal(t, model.PaymentStatusSuccess, all[1].Status)

	_, err = h.payments.RetryPayment(ctx, asUser(u), o.OrderID, "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyPaid)
	_, err = h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodCOD, "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyPaid)
}

func TestInitiatePayment_CashOnDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})

	res, err := h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodCOD, "")
	require.NoError(t, err)
	assert.Empty(t, res.PaymentURL)
	assert.Equal(t, model.OrderStatusConfirmed, res.OrderStatus)

	stored := h.order(t, o.OrderID)
	assert.Equal(t, model.OrderStatusConfirmed, stored.Status)
	assert.Equal(t, model.PaymentMethodCOD, stored.PaymentMethod)

	active, err := h.payRep.GetActiveByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, active.Status)
	assert.Equal(t, model.PaymentMethodCOD, active.Method)
}

func TestInitiatePayment_Guards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	other := h.seedUser(t, "b@example.com")
	p := h.seedProduct(t, "Dune", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})

	_, err := h.payments.InitiatePayment(ctx, asUser(u), 1, model.PaymentMethodGateway, "")
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)

	_, err = h.payments.InitiatePayment(ctx, asUser(other), o.OrderID, model.PaymentMethodGateway, "")
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	_, err = h.orders.CancelOrder(ctx, asUser(u), o.OrderID)
	require.NoError(t, err)
	_, err = h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodGateway, "")
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	_, err = h.payments.RetryPayment(ctx, asUser(u), o.OrderID, "")
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestGatewayCallback_CancelledOrderNotRevived(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})
	_, err := h.orders.CancelOrder(ctx, asUser(u), o.OrderID)
	require.NoError(t, err)

	cb, err := h.payments.HandleGatewayCallback(ctx, callback(unknownRef(o.OrderID), o.TotalAmount, "00"))
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeFailed, cb.Outcome)
	assert.Equal(t, model.OrderStatusCancelled, h.order(t, o.OrderID).Status)
	assert.Equal(t, 10, h.product(t, p.ID).StockQuantity)
}

func TestGatewayPayment_LowStockEventAfterSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	low := h.seedProduct(t, "Dune", 6)
	plenty := h.seedProduct(t, "Emma", 100)

	var mu sync.Mutex
	var got []int64
	require.NoError(t, h.lowStock.Subscribe(func(ev events.LowStockEvent) {
		mu.Lock()
		got = append(got, ev.ProductID)
		mu.Unlock()
	}))

	o := h.placeOrder(t, u.ID, OrderItem{ProductID: low.ID, Quantity: 2}, OrderItem{ProductID: plenty.ID, Quantity: 1})
	_, err := h.payments.HandleGatewayCallback(ctx, callback(unknownRef(o.OrderID), o.TotalAmount, "00"))
	require.NoError(t, err)
	h.lowStock.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{low.ID}, got)
}

func TestGatewayCallback_StaleDeclineAfterSwitchToCOD(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})

	gw, err := h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodGateway, "")
	require.NoError(t, err)
	cod, err := h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodCOD, "")
	require.NoError(t, err)

	cb, err := h.payments.HandleGatewayCallback(ctx, callback(gw.TxnRef, o.TotalAmount, "24"))
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeFailed, cb.Outcome)
	assert.Equal(t, "superseded attempt", cb.Reason)

	assert.Equal(t, model.OrderStatusConfirmed, h.order(t, o.OrderID).Status)
	active, err := h.payRep.GetActiveByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, cod.PaymentID, active.ID)
	assert.Equal(t, model.PaymentStatusPending, active.Status)
	_, failed := h.notifier.counts()
	assert.Zero(t, failed)
}

func TestGatewayCallback_StaleSuccessAfterSwitchToCOD(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})

	gw, err := h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodGateway, "")
	require.NoError(t, err)
	cod, err := h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodCOD, "")
	require.NoError(t, err)

	cb, err := h.payments.HandleGatewayCallback(ctx, callback(gw.TxnRef, o.TotalAmount, "00"))
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSuccess, cb.Outcome)

	stored := h.order(t, o.OrderID)
	assert.Equal(t, model.OrderStatusPaid, stored.Status)
	assert.Equal(t, model.PaymentMethodGateway, stored.PaymentMethod)

	all, err := h.payRep.ListByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, gw.PaymentID, all[0].ID)
	assert.True(t, all[0].Superseded)
	assert.Equal(t, cod.PaymentID, all[1].ID)
	assert.True(t, all[1].Superseded)
	assert.Equal(t, model.PaymentStatusPending, all[1].Status, "cash payment row is not rewritten")

	settled := all[2]
	assert.False(t, settled.Superseded)
	assert.Equal(t, model.PaymentMethodGateway, settled.Method)
	assert.Equal(t, model.PaymentStatusSuccess, settled.Status)
	assert.Equal(t, gw.TxnRef, settled.TxnRef)
	assert.Equal(t, "14000001", settled.GatewayTxnNo)

	confirmed, _ := h.notifier.counts()
	assert.Equal(t, 1, confirmed)
}

func TestGatewayCallback_StaleDeclineKeepsNewerAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	p := h.seedProduct(t, "Dune", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})

	older, err := h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodGateway, "")
	require.NoError(t, err)
	newer, err := h.payments.RetryPayment(ctx, asUser(u), o.OrderID, "")
	require.NoError(t, err)
	require.NotEqual(t, older.TxnRef, newer.TxnRef)

	cb, err := h.payments.HandleGatewayCallback(ctx, callback(older.TxnRef, o.TotalAmount, "24"))
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeFailed, cb.Outcome)
	assert.Equal(t, model.OrderStatusPending, h.order(t, o.OrderID).Status)
	active, err := h.payRep.GetActiveByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, active.Status)
	assert.Equal(t, newer.TxnRef, active.TxnRef)
	_, failed := h.notifier.counts()
	assert.Zero(t, failed)

	cb, err = h.payments.HandleGatewayCallback(ctx, callback(newer.TxnRef, o.TotalAmount, "00"))
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSuccess, cb.Outcome)
	assert.Equal(t, model.OrderStatusPaid, h.order(t, o.OrderID).Status)
}

func TestInitiatePayment_ZeroTotalNeedsCashOnDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	free := &model.Product{Name: "Free Sample", Price: decimal.NewFromInt(50000), Discount: 100, StockQuantity: 10, Active: true}
	require.NoError(t, h.db.Create(free).Error)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: free.ID, Quantity: 1})
	require.True(t, o.TotalAmount.IsZero())

	_, err := h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodGateway, "")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	assert.Equal(t, apperr.ReasonNothingToPay, apperr.ReasonOf(err))
	_, err = h.payments.RetryPayment(ctx, asUser(u), o.OrderID, "")
	assert.Equal(t, apperr.ReasonNothingToPay, apperr.ReasonOf(err))

	payments, err := h.payRep.ListByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	res, err := h.payments.InitiatePayment(ctx, asUser(u), o.OrderID, model.PaymentMethodCOD, "")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, res.OrderStatus)
}
