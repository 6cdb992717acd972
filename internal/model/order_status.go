package model

import "fmt"

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusConfirmed     OrderStatus = "CONFIRMED"
	OrderStatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
	OrderStatusPaid          OrderStatus = "PAID"
	OrderStatusShipped       OrderStatus = "SHIPPED"
	OrderStatusDelivered     OrderStatus = "DELIVERED"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
)

// orderTransitions 允许的状态迁移；未列出的一律拒绝
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:       {OrderStatusConfirmed, OrderStatusPaid, OrderStatusPaymentFailed, OrderStatusCancelled},
	OrderStatusConfirmed:     {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaymentFailed: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:          {OrderStatusShipped},
	OrderStatusShipped:       {OrderStatusDelivered},
	OrderStatusDelivered:     nil,
	OrderStatusCancelled:     nil,
}

// ParseOrderStatus 解析状态字符串
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransitionTo 同状态视为幂等，返回 true
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return s.Valid()
	}
	for _, to := range orderTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// IsTerminal DELIVERED 与 CANCELLED
func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// IsSettled 已支付或之后的状态
func (s OrderStatus) IsSettled() bool {
	switch s {
	case OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// IsPrePaid 支付之前、可以取消的状态
func (s OrderStatus) IsPrePaid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPaymentFailed:
		return true
	}
	return false
}
