package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/bookstore/internal/model"
)

// OrderRepository 订单仓储接口
type OrderRepository interface {
	WithTx(tx *gorm.DB) OrderRepository

	// Create 创建订单（连同明细）
	Create(ctx context.Context, order *model.Order) error

	// GetByOrderID 根据订单ID查询订单，带出明细
	GetByOrderID(ctx context.Context, orderID int64) (*model.Order, error)

	// LockByOrderID 事务内 SELECT ... FOR UPDATE
	LockByOrderID(ctx context.Context, orderID int64) (*model.Order, error)

	// GetByUserID 根据用户ID查询订单列表
	GetByUserID(ctx context.Context, userID int64, offset, limit int) ([]*model.Order, error)

	// CompareAndSetStatus 仅当当前状态为 from 时更新为 to
	CompareAndSetStatus(ctx context.Context, orderID int64, from, to model.OrderStatus) (bool, error)

	// SetPaymentMethod 发起支付时记录支付方式
	SetPaymentMethod(ctx context.Context, orderID int64, method model.PaymentMethod) error

	// ListStaleUnpaid 超时未支付的网关订单
	ListStaleUnpaid(ctx context.Context, before time.Time, limit int) ([]int64, error)

	// Count 统计订单数量
	Count(ctx context.Context) (int64, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) WithTx(tx *gorm.DB) OrderRepository { return &orderRepository{db: tx} }

// Create 创建订单
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(order).Error, "create order")
}

// GetByOrderID 根据订单ID查询订单
func (r *orderRepository) GetByOrderID(ctx context.Context, orderID int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", orderID)
	}
	return &order, nil
}

// LockByOrderID 锁定订单行
func (r *orderRepository) LockByOrderID(ctx context.Context, orderID int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, errors.Wrapf(err, "lock order %d", orderID)
	}
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&order.Details).Error; err != nil {
		return nil, errors.Wrapf(err, "load details of %d", orderID)
	}
	return &order, nil
}

// GetByUserID 根据用户ID查询订单列表
func (r *orderRepository) GetByUserID(ctx context.Context, userID int64, offset, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Preload("Details").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list orders of user %d", userID)
	}
	return orders, nil
}

// CompareAndSetStatus 更新订单状态
func (r *orderRepository) CompareAndSetStatus(ctx context.Context, orderID int64, from, to model.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "update status of %d", orderID)
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) SetPaymentMethod(ctx context.Context, orderID int64, method model.PaymentMethod) error {
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{"payment_method": method, "updated_at": time.Now()}).Error
	return errors.Wrapf(err, "set payment method of %d", orderID)
}

func (r *orderRepository) ListStaleUnpaid(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("payment_method = ? AND status IN ? AND created_at < ?",
			model.PaymentMethodGateway,
			[]model.OrderStatus{model.OrderStatusPending, model.OrderStatusPaymentFailed},
			before).
		Order("created_at ASC").
		Limit(limit).
		Pluck("order_id", &ids).Error
	return ids, errors.Wrap(err, "list stale unpaid orders")
}

// Count 统计订单数量
func (r *orderRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).Count(&count).Error
	return count, errors.Wrap(err, "count orders")
}
