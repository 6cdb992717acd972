package repository

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/bookstore/internal/model"
)

type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository

	// GetByUserID 带出购物车行
	GetByUserID(ctx context.Context, userID int64) (*model.Cart, error)
	// GetOrCreate 幂等：并发首次访问只会产生一条购物车
	GetOrCreate(ctx context.Context, userID int64) (*model.Cart, error)

	GetLine(ctx context.Context, cartID, productID int64) (*model.CartLine, error)
	// AddQuantity 不存在则插入，存在则累加
	AddQuantity(ctx context.Context, cartID, productID int64, qty int) error
	// SetQuantity 不存在则插入，存在则覆盖
	SetQuantity(ctx context.Context, cartID, productID int64, qty int) error
	DeleteLine(ctx context.Context, cartID, productID int64) (bool, error)
	DeleteLines(ctx context.Context, cartID int64) error

	UpdateTotal(ctx context.Context, cartID int64, total decimal.Decimal) error
}

type cartRepository struct{ db *gorm.DB }

func NewCartRepository(db *gorm.DB) CartRepository { return &cartRepository{db: db} }

func (r *cartRepository) WithTx(tx *gorm.DB) CartRepository { return &cartRepository{db: tx} }

func (r *cartRepository) GetByUserID(ctx context.Context, userID int64) (*model.Cart, error) {
	var c model.Cart
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("user_id = ?", userID).
		First(&c).Error
	if err != nil {
		return nil, errors.Wrapf(err, "get cart of user %d", userID)
	}
	return &c, nil
}

func (r *cartRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Cart, error) {
	c := &model.Cart{UserID: userID, TotalAmount: decimal.Zero}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(c).Error
	if err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return r.GetByUserID(ctx, userID)
}

func (r *cartRepository) GetLine(ctx context.Context, cartID, productID int64) (*model.CartLine, error) {
	var l model.CartLine
	err := r.db.WithContext(ctx).Where("cart_id = ? AND product_id = ?", cartID, productID).First(&l).Error
	if err != nil {
		return nil, errors.Wrapf(err, "get cart line %d/%d", cartID, productID)
	}
	return &l, nil
}

func (r *cartRepository) AddQuantity(ctx context.Context, cartID, productID int64, qty int) error {
	l := &model.CartLine{CartID: cartID, ProductID: productID, Quantity: qty}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"quantity": gorm.Expr("cart_lines.quantity + ?", qty)}),
	}).Create(l).Error
	return errors.Wrap(err, "add cart quantity")
}

func (r *cartRepository) SetQuantity(ctx context.Context, cartID, productID int64, qty int) error {
	l := &model.CartLine{CartID: cartID, ProductID: productID, Quantity: qty}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(l).Error
	return errors.Wrap(err, "set cart quantity")
}

func (r *cartRepository) DeleteLine(ctx context.Context, cartID, productID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&model.CartLine{})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "delete cart line")
	}
	return res.RowsAffected > 0, nil
}

func (r *cartRepository) DeleteLines(ctx context.Context, cartID int64) error {
	err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&model.CartLine{}).Error
	return errors.Wrap(err, "clear cart lines")
}

func (r *cartRepository) UpdateTotal(ctx context.Context, cartID int64, total decimal.Decimal) error {
	err := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update("total_amount", total).Error
	return errors.Wrap(err, "update cart total")
}
