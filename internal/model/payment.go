package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "COD"
	PaymentMethodGateway PaymentMethod = "GATEWAY"
)

// ParsePaymentMethod 兼容旧客户端传入的 VNPAY
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COD":
		return PaymentMethodCOD, nil
	case "GATEWAY", "VNPAY":
		return PaymentMethodGateway, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// Payment 支付记录
// 每个订单至多一条未被替代(Superseded=false)的记录；重试时旧的失败记录被替代
type Payment struct {
	ID           int64           `json:"id" gorm:"primaryKey"`
	OrderID      int64           `json:"order_id" gorm:"index:idx_payment_order;not null"`
	Method       PaymentMethod   `json:"method" gorm:"type:varchar(16);not null"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	Status       PaymentStatus   `json:"status" gorm:"type:varchar(16);index;not null"`
	TxnRef       string          `json:"txn_ref" gorm:"type:varchar(64);index"`
	GatewayTxnNo string          `json:"gateway_txn_no" gorm:"type:varchar(64)"`
	Superseded   bool            `json:"superseded" gorm:"index:idx_payment_order;not null;default:false"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }
