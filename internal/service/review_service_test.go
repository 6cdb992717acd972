package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/pkg/apperr"
)

func TestCreateReview_Eligibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedUser(t, "a@example.com")
	other := h.seedUser(t, "b@example.com")
	p := h.seedProduct(t, "Dune", 10)
	notBought := h.seedProduct(t, "Emma", 10)
	o := h.placeOrder(t, u.ID, OrderItem{ProductID: p.ID, Quantity: 1})

	_, err := h.reviews.CreateReview(ctx, u.ID, o.OrderID, p.ID, 5, "great")
	assert.ErrorIs(t, err, apperr.ErrNotEligible, "not delivered yet")

	for _, st := range []model.OrderStatus{model.OrderStatusPaid, model.OrderStatusShipped, model.OrderStatusDelivered} {
		_, err := h.orders.UpdateStatus(ctx, o.OrderID, st)
		require.NoError(t, err)
	}

	tests := []struct {
		name      string
		userID    int64
		orderID   int64
		productID int64
		rating    int
		comment   string
		want      error
	}{
		{"rating too low", u.ID, o.OrderID, p.ID, 0, "ok", apperr.Validation(apperr.ReasonInvalidInput, "")},
		{"rating too high", u.ID, o.OrderID, p.ID, 6, "ok", apperr.Validation(apperr.ReasonInvalidInput, "")},
		{"blank comment", u.ID, o.OrderID, p.ID, 4, "   ", apperr.Validation(apperr.ReasonInvalidInput, "")},
		{"other user", other.ID, o.OrderID, p.ID, 4, "ok", apperr.ErrNotEligible},
		{"product not in order", u.ID, o.OrderID, notBought.ID, 4, "ok", apperr.ErrNotEligible},
		{"missing order", u.ID, 1, p.ID, 4, "ok", apperr.ErrNotEligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.reviews.CreateReview(ctx, tt.userID, tt.orderID, tt.productID, tt.rating, tt.comment)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	rv, err := h.reviews.CreateReview(ctx, u.ID, o.OrderID, p.ID, 5, " great read ")
	require.NoError(t, err)
	assert.Equal(t, "great read", rv.Comment)

	_, err = h.reviews.CreateReview(ctx, u.ID, o.OrderID, p.ID, 4, "again")
	assert.ErrorIs(t, err, apperr.ErrAlreadyReviewed)

	list, err := h.reviews.ListProductReviews(ctx, p.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].Rating)
}
