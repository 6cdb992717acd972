package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart 购物车，每个用户一个
type Cart struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	UserID      int64           `json:"user_id" gorm:"uniqueIndex;not null"`
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"type:decimal(14,2);not null;default:0"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Lines []CartLine `json:"lines" gorm:"foreignKey:CartID"`
}

func (Cart) TableName() string { return "carts" }

// CartLine 购物车行，数量为 0 时删除
type CartLine struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	CartID    int64     `json:"cart_id" gorm:"uniqueIndex:ux_cart_product;not null"`
	ProductID int64     `json:"product_id" gorm:"uniqueIndex:ux_cart_product;not null"`
	Quantity  int       `json:"quantity" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CartLine) TableName() string { return "cart_lines" }

// CartItemView 展示用的购物车行，小计按当前实际售价计算
type CartItemView struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	RealPrice   decimal.Decimal `json:"real_price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// CartView 购物车快照
type CartView struct {
	CartID      int64           `json:"cart_id"`
	UserID      int64           `json:"user_id"`
	Items       []CartItemView  `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}
