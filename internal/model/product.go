package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// Product 商品（图书）
// RealPrice 由 Price 与 Discount 在写入时计算并落库，不接受外部传入
type Product struct {
	ID            int64           `json:"id" gorm:"primaryKey"`
	Name          string          `json:"name" gorm:"type:varchar(255);not null"`
	Author        string          `json:"author" gorm:"type:varchar(255)"`
	ISBN          string          `json:"isbn" gorm:"column:isbn;type:varchar(32);index"`
	Price         decimal.Decimal `json:"price" gorm:"type:decimal(14,2);not null"`
	Discount      int             `json:"discount" gorm:"not null;default:0"`
	RealPrice     decimal.Decimal `json:"real_price" gorm:"type:decimal(14,2);not null"`
	StockQuantity int             `json:"stock_quantity" gorm:"not null;default:0"`
	SoldCount     int             `json:"sold_count" gorm:"not null;default:0"`
	Active        bool            `json:"active" gorm:"index;not null;default:true"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// ComputeRealPrice price × (1 − discount/100)，保留两位小数
func ComputeRealPrice(price decimal.Decimal, discount int) decimal.Decimal {
	if discount <= 0 {
		return price.Round(2)
	}
	if discount >= 100 {
		return decimal.Zero
	}
	return price.Mul(hundred.Sub(decimal.NewFromInt(int64(discount)))).Div(hundred).Round(2)
}

// BeforeSave 每次保存都重新计算实际售价
func (p *Product) BeforeSave(tx *gorm.DB) error {
	p.RealPrice = ComputeRealPrice(p.Price, p.Discount)
	return nil
}
