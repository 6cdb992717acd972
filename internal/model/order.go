package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 订单模型
// 收货信息与明细在创建后冻结，只有 Status 会变化
type Order struct {
	OrderID         int64           `json:"order_id" gorm:"primaryKey;autoIncrement:false"`
	UserID          int64           `json:"user_id" gorm:"index:idx_user_created;not null"`
	Status          OrderStatus     `json:"status" gorm:"type:varchar(20);index;not null;default:PENDING"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:decimal(14,2);not null"`
	PaymentMethod   PaymentMethod   `json:"payment_method" gorm:"type:varchar(16)"`
	ShippingName    string          `json:"shipping_name" gorm:"type:varchar(100);not null"`
	ShippingPhone   string          `json:"shipping_phone" gorm:"type:varchar(20);not null"`
	ShippingAddress string          `json:"shipping_address" gorm:"type:varchar(255);not null"`
	CreatedAt       time.Time       `json:"created_at" gorm:"index:idx_user_created;not null"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null"`

	Details []OrderDetail `json:"details,omitempty" gorm:"foreignKey:OrderID;references:OrderID"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// HasProduct 订单明细中是否包含该商品
func (o *Order) HasProduct(productID int64) bool {
	for _, d := range o.Details {
		if d.ProductID == productID {
			return true
		}
	}
	return false
}

// OrderDetail 订单明细，UnitPrice 为下单时的实际售价快照
type OrderDetail struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	OrderID     int64           `json:"order_id" gorm:"index;not null"`
	ProductID   int64           `json:"product_id" gorm:"index;not null"`
	ProductName string          `json:"product_name" gorm:"type:varchar(255)"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(14,2);not null"`
	Subtotal    decimal.Decimal `json:"subtotal" gorm:"type:decimal(14,2);not null"`
}

func (OrderDetail) TableName() string {
	return "order_details"
}
