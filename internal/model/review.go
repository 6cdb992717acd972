package model

import "time"

// Review 商品评价，(user, product, order) 唯一
type Review struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	UserID    int64     `json:"user_id" gorm:"uniqueIndex:ux_review_user_product_order;not null"`
	ProductID int64     `json:"product_id" gorm:"uniqueIndex:ux_review_user_product_order;index:idx_review_product;not null"`
	OrderID   int64     `json:"order_id" gorm:"uniqueIndex:ux_review_user_product_order;not null"`
	Rating    int       `json:"rating" gorm:"not null"`
	Comment   string    `json:"comment" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_review_product"`
}

func (Review) TableName() string { return "reviews" }
