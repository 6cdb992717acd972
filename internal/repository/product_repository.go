package repository

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/bookstore/internal/model"
)

// ErrStockNotEnough 条件扣减未命中（库存不足）
var ErrStockNotEnough = errors.New("stock not enough")

// ProductRepository 商品仓储（库存与销量）
type ProductRepository interface {
	WithTx(tx *gorm.DB) ProductRepository

	Create(ctx context.Context, p *model.Product) error
	// GetByID 不区分上下架
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	// GetActiveByID 只返回上架商品
	GetActiveByID(ctx context.Context, id int64) (*model.Product, error)
	// ListActiveByIDs 批量查询上架商品
	ListActiveByIDs(ctx context.Context, ids []int64) ([]*model.Product, error)
	// LockActiveByIDs SELECT ... FOR UPDATE，按 id 升序加锁
	LockActiveByIDs(ctx context.Context, ids []int64) ([]*model.Product, error)

	DecrementStock(ctx context.Context, id int64, qty int) error
	IncrementStock(ctx context.Context, id int64, qty int) error
	// AdjustSoldCount 销量增减，结果不低于 0
	AdjustSoldCount(ctx context.Context, id int64, delta int) error

	UpdatePricing(ctx context.Context, id int64, price decimal.Decimal, discount int) (*model.Product, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepository{db: db} }

func (r *productRepository) WithTx(tx *gorm.DB) ProductRepository { return &productRepository{db: tx} }

func (r *productRepository) Create(ctx context.Context, p *model.Product) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(p).Error, "create product")
}

func (r *productRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return &p, nil
}

func (r *productRepository) GetActiveByID(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&p).Error; err != nil {
		return nil, errors.Wrapf(err, "get active product %d", id)
	}
	return &p, nil
}

func (r *productRepository) ListActiveByIDs(ctx context.Context, ids []int64) ([]*model.Product, error) {
	var res []*model.Product
	if len(ids) == 0 {
		return res, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ? AND active = ?", ids, true).Find(&res).Error
	return res, errors.Wrap(err, "list products")
}

func (r *productRepository) LockActiveByIDs(ctx context.Context, ids []int64) ([]*model.Product, error) {
	var res []*model.Product
	if len(ids) == 0 {
		return res, nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ? AND active = ?", ids, true).
		Order("id ASC").
		Find(&res).Error
	return res, errors.Wrap(err, "lock products")
}

func (r *productRepository) DecrementStock(ctx context.Context, id int64, qty int) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock_quantity >= ?", id, qty).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "decrement stock of %d", id)
	}
	if res.RowsAffected == 0 {
		return ErrStockNotEnough
	}
	return nil
}

func (r *productRepository) IncrementStock(ctx context.Context, id int64, qty int) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", qty))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "increment stock of %d", id)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(gorm.ErrRecordNotFound, "increment stock of %d", id)
	}
	return nil
}

func (r *productRepository) AdjustSoldCount(ctx context.Context, id int64, delta int) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		UpdateColumn("sold_count", gorm.Expr("CASE WHEN sold_count + ? < 0 THEN 0 ELSE sold_count + ? END", delta, delta))
	// MySQL 的 RowsAffected 只统计实际变化的行，销量已为 0 时不能据此判断不存在
	return errors.Wrapf(res.Error, "adjust sold count of %d", id)
}

func (r *productRepository) UpdatePricing(ctx context.Context, id int64, price decimal.Decimal, discount int) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&p).Error; err != nil {
			return err
		}
		p.Price = price
		p.Discount = discount
		// Save 触发 BeforeSave 重新计算 RealPrice
		return tx.Save(&p).Error
	})
	if err != nil {
		return nil, errors.Wrapf(err, "update pricing of %d", id)
	}
	return &p, nil
}
